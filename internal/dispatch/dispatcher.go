// Package dispatch validates and executes operator actuator commands.
package dispatch

import (
	"errors"
	"log"
	"strings"
	"time"

	"iotview/internal/device"
	"iotview/internal/history"
)

var (
	// ErrActuatorNotFound is returned for an unknown actuator ID.
	ErrActuatorNotFound = errors.New("actuator not found")

	// ErrNoCommandTopic is returned when the actuator has no command topic.
	ErrNoCommandTopic = errors.New("actuator has no command topic")

	// ErrInvalidCommand is returned for a command outside the vocabulary.
	ErrInvalidCommand = errors.New("invalid command")
)

// Command is the wire payload of an actuator command.
type Command string

const (
	CommandOn  Command = "ON"
	CommandOff Command = "OFF"
)

// ParseRaw validates a raw wire command ("ON"/"OFF", case-insensitive).
func ParseRaw(raw string) (Command, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ON":
		return CommandOn, nil
	case "OFF":
		return CommandOff, nil
	default:
		return "", ErrInvalidCommand
	}
}

// ParseSemantic maps the operator vocabulary ("ligar"/"desligar") to a
// wire command.
func ParseSemantic(word string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "ligar":
		return CommandOn, nil
	case "desligar":
		return CommandOff, nil
	default:
		return "", ErrInvalidCommand
	}
}

// state maps a command to the optimistic post-command state.
func (c Command) state() device.State {
	if c == CommandOn {
		return device.StateOn
	}
	return device.StateOff
}

// Publisher is the slice of the broker connection manager the
// dispatcher needs.
type Publisher interface {
	Publish(topic, payload string) error
}

// Dispatcher executes actuator commands: publish to the command topic,
// update the state store optimistically, append to the command history.
type Dispatcher struct {
	store   *device.Store
	pub     Publisher
	history *history.Ring
	logger  *log.Logger
}

// New creates a dispatcher.
func New(store *device.Store, pub Publisher, hist *history.Ring, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		pub:     pub,
		history: hist,
		logger:  logger,
	}
}

// Dispatch sends cmd to the actuator and returns the new logical state.
// The state store is updated immediately, before any device-side echo:
// command acknowledgment over MQTT is not synchronous and the dashboard
// must reflect intent at once. A later authoritative status-topic
// message supersedes the optimistic value.
func (d *Dispatcher) Dispatch(user, actuatorID string, cmd Command) (device.State, error) {
	if cmd != CommandOn && cmd != CommandOff {
		return "", ErrInvalidCommand
	}

	a, ok := d.store.Actuator(actuatorID)
	if !ok {
		return "", ErrActuatorNotFound
	}
	if a.CommandTopic == "" {
		return "", ErrNoCommandTopic
	}

	// Publish outside the store lock. Failures are transient broker
	// conditions: log and keep the optimistic update, the operator's
	// intent stands.
	if err := d.pub.Publish(a.CommandTopic, string(cmd)); err != nil {
		if d.logger != nil {
			d.logger.Printf("[Dispatch] Publish %s to %s failed: %v", cmd, a.CommandTopic, err)
		}
	}

	newState := cmd.state()
	now := time.Now()
	d.store.SetActuatorState(actuatorID, newState, now)

	d.history.Append(history.Entry{
		Timestamp:    now,
		User:         user,
		ActuatorName: a.Name,
		Command:      newState.Display(),
		Topic:        a.CommandTopic,
		Payload:      string(cmd),
	})

	if d.logger != nil {
		d.logger.Printf("[Dispatch] %s sent %s to %s (%s)", user, cmd, a.Name, a.CommandTopic)
	}
	return newState, nil
}

// Toggle flips the actuator's current state: ON becomes OFF, anything
// else (OFF, UNKNOWN, custom labels) becomes ON.
func (d *Dispatcher) Toggle(user, actuatorID string) (device.State, error) {
	a, ok := d.store.Actuator(actuatorID)
	if !ok {
		return "", ErrActuatorNotFound
	}

	cmd := CommandOn
	if a.State == device.StateOn {
		cmd = CommandOff
	}
	return d.Dispatch(user, actuatorID, cmd)
}
