package device

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProtected is returned when deleting a default seed device.
	ErrProtected = errors.New("default devices cannot be deleted")

	// ErrInvalidDevice is returned when required fields are missing.
	ErrInvalidDevice = errors.New("invalid device definition")
)

// Subscriber is the slice of the broker connection manager the registry
// needs. Calls are fire-and-forget: subscription failures are logged by
// the manager and repaired on the next reconnect.
type Subscriber interface {
	Subscribe(topic string)
	Unsubscribe(topic string)
}

// Service orchestrates registry CRUD: it persists the record, updates
// the topic registry and live state store, and adjusts broker
// subscriptions — in that order, synchronously, before returning.
type Service struct {
	repo   Repository
	store  *Store
	broker Subscriber
	logger *log.Logger
}

// NewService creates a registry service.
func NewService(repo Repository, store *Store, broker Subscriber, logger *log.Logger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		broker: broker,
		logger: logger,
	}
}

// Bootstrap seeds the default devices on first run and loads every
// persisted device into the state store. Must be called before the
// broker connection manager starts so the first connect already sees
// the full topic set.
func (s *Service) Bootstrap() error {
	if seeder, ok := s.repo.(interface{ Empty() (bool, error) }); ok {
		empty, err := seeder.Empty()
		if err != nil {
			return fmt.Errorf("failed to inspect registry: %w", err)
		}
		if empty {
			if err := s.seedDefaults(); err != nil {
				return err
			}
		}
	}

	sensors, err := s.repo.ListSensors()
	if err != nil {
		return fmt.Errorf("failed to list sensors: %w", err)
	}
	for _, sn := range sensors {
		if err := s.store.AddSensor(sn); err != nil {
			return fmt.Errorf("failed to load sensor %s: %w", sn.ID, err)
		}
	}

	actuators, err := s.repo.ListActuators()
	if err != nil {
		return fmt.Errorf("failed to list actuators: %w", err)
	}
	for _, a := range actuators {
		if err := s.store.AddActuator(a); err != nil {
			return fmt.Errorf("failed to load actuator %s: %w", a.ID, err)
		}
	}

	if s.logger != nil {
		s.logger.Printf("[Registry] Loaded %d sensors and %d actuators", len(sensors), len(actuators))
	}
	return nil
}

func (s *Service) seedDefaults() error {
	now := time.Now()
	for _, sn := range DefaultSensors(now) {
		if err := s.repo.SaveSensor(sn); err != nil {
			return fmt.Errorf("failed to seed sensor %s: %w", sn.ID, err)
		}
	}
	for _, a := range DefaultActuators(now) {
		if err := s.repo.SaveActuator(a); err != nil {
			return fmt.Errorf("failed to seed actuator %s: %w", a.ID, err)
		}
	}
	if s.logger != nil {
		s.logger.Printf("[Registry] Seeded default devices")
	}
	return nil
}

// RegisterSensor creates a sensor, binds its topic and subscribes to it.
func (s *Service) RegisterSensor(name, topic, unit string) (Sensor, error) {
	name = strings.TrimSpace(name)
	topic = strings.TrimSpace(topic)
	if name == "" || topic == "" {
		return Sensor{}, fmt.Errorf("%w: name and topic are required", ErrInvalidDevice)
	}

	sn := Sensor{
		ID:        "sensor_" + uuid.NewString()[:8],
		Name:      name,
		Topic:     topic,
		Unit:      strings.TrimSpace(unit),
		CreatedAt: time.Now(),
	}

	// Bind first: the store performs the conflict check atomically.
	if err := s.store.AddSensor(sn); err != nil {
		return Sensor{}, err
	}
	if err := s.repo.SaveSensor(sn); err != nil {
		s.store.RemoveSensor(sn.ID)
		return Sensor{}, fmt.Errorf("failed to persist sensor: %w", err)
	}

	s.broker.Subscribe(sn.Topic)
	if s.logger != nil {
		s.logger.Printf("[Registry] Registered sensor %s (%s) on %s", sn.ID, sn.Name, sn.Topic)
	}
	return sn, nil
}

// UpdateSensor edits a sensor. A topic change unsubscribes the old topic
// and subscribes the new one; the conflict check applies on edit exactly
// as on create.
func (s *Service) UpdateSensor(id, name, topic, unit string) (Sensor, error) {
	name = strings.TrimSpace(name)
	topic = strings.TrimSpace(topic)
	if name == "" || topic == "" {
		return Sensor{}, fmt.Errorf("%w: name and topic are required", ErrInvalidDevice)
	}

	existing, err := s.repo.GetSensor(id)
	if err != nil {
		return Sensor{}, err
	}
	prev := existing

	existing.Name = name
	existing.Topic = topic
	existing.Unit = strings.TrimSpace(unit)

	oldTopic, err := s.store.UpdateSensorMeta(existing)
	if err != nil {
		return Sensor{}, err
	}
	if err := s.repo.SaveSensor(existing); err != nil {
		// Restore the previous record so the live registry keeps matching
		// what the repository actually holds.
		s.store.UpdateSensorMeta(prev)
		return Sensor{}, fmt.Errorf("failed to persist sensor: %w", err)
	}

	if oldTopic != existing.Topic {
		s.broker.Unsubscribe(oldTopic)
		s.broker.Subscribe(existing.Topic)
	}
	return existing, nil
}

// DeleteSensor removes a sensor and unsubscribes its topic. Seed devices
// are protected.
func (s *Service) DeleteSensor(id string) error {
	existing, err := s.repo.GetSensor(id)
	if err != nil {
		return err
	}
	if existing.Default {
		return ErrProtected
	}

	if err := s.repo.DeleteSensor(id); err != nil {
		return fmt.Errorf("failed to delete sensor: %w", err)
	}
	if topic, ok := s.store.RemoveSensor(id); ok {
		s.broker.Unsubscribe(topic)
	}
	if s.logger != nil {
		s.logger.Printf("[Registry] Deleted sensor %s", id)
	}
	return nil
}

// RegisterActuator creates an actuator, claims its command topic, binds
// and subscribes the status topic when one is configured.
func (s *Service) RegisterActuator(name, commandTopic, statusTopic string) (Actuator, error) {
	name = strings.TrimSpace(name)
	commandTopic = strings.TrimSpace(commandTopic)
	statusTopic = strings.TrimSpace(statusTopic)
	if name == "" || commandTopic == "" {
		return Actuator{}, fmt.Errorf("%w: name and command topic are required", ErrInvalidDevice)
	}

	a := Actuator{
		ID:           "actuator_" + uuid.NewString()[:8],
		Name:         name,
		CommandTopic: commandTopic,
		StatusTopic:  statusTopic,
		CreatedAt:    time.Now(),
	}

	if err := s.store.AddActuator(a); err != nil {
		return Actuator{}, err
	}
	if err := s.repo.SaveActuator(a); err != nil {
		s.store.RemoveActuator(a.ID)
		return Actuator{}, fmt.Errorf("failed to persist actuator: %w", err)
	}

	if a.StatusTopic != "" {
		s.broker.Subscribe(a.StatusTopic)
	}
	if s.logger != nil {
		s.logger.Printf("[Registry] Registered actuator %s (%s) cmd=%s", a.ID, a.Name, a.CommandTopic)
	}
	return a, nil
}

// UpdateActuator edits an actuator with the same subscription handling
// as UpdateSensor for the status topic.
func (s *Service) UpdateActuator(id, name, commandTopic, statusTopic string) (Actuator, error) {
	name = strings.TrimSpace(name)
	commandTopic = strings.TrimSpace(commandTopic)
	statusTopic = strings.TrimSpace(statusTopic)
	if name == "" || commandTopic == "" {
		return Actuator{}, fmt.Errorf("%w: name and command topic are required", ErrInvalidDevice)
	}

	existing, err := s.repo.GetActuator(id)
	if err != nil {
		return Actuator{}, err
	}
	prev := existing

	existing.Name = name
	existing.CommandTopic = commandTopic
	existing.StatusTopic = statusTopic

	oldStatusTopic, err := s.store.UpdateActuatorMeta(existing)
	if err != nil {
		return Actuator{}, err
	}
	if err := s.repo.SaveActuator(existing); err != nil {
		s.store.UpdateActuatorMeta(prev)
		return Actuator{}, fmt.Errorf("failed to persist actuator: %w", err)
	}

	if oldStatusTopic != existing.StatusTopic {
		if oldStatusTopic != "" {
			s.broker.Unsubscribe(oldStatusTopic)
		}
		if existing.StatusTopic != "" {
			s.broker.Subscribe(existing.StatusTopic)
		}
	}
	return existing, nil
}

// DeleteActuator removes an actuator and unsubscribes its status topic.
// Seed devices are protected.
func (s *Service) DeleteActuator(id string) error {
	existing, err := s.repo.GetActuator(id)
	if err != nil {
		return err
	}
	if existing.Default {
		return ErrProtected
	}

	if err := s.repo.DeleteActuator(id); err != nil {
		return fmt.Errorf("failed to delete actuator: %w", err)
	}
	if statusTopic, ok := s.store.RemoveActuator(id); ok && statusTopic != "" {
		s.broker.Unsubscribe(statusTopic)
	}
	if s.logger != nil {
		s.logger.Printf("[Registry] Deleted actuator %s", id)
	}
	return nil
}
