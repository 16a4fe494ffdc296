package device

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrTopicConflict is returned when a topic is already owned by a
	// different device.
	ErrTopicConflict = errors.New("topic already bound to another device")

	// ErrNotFound is returned when a device ID does not resolve.
	ErrNotFound = errors.New("device not found")
)

// sensorLive is a sensor's runtime reading.
type sensorLive struct {
	meta  Sensor
	value interface{} // float64 or string; nil until first message
	ts    time.Time
}

// actuatorLive is an actuator's runtime state.
type actuatorLive struct {
	meta  Actuator
	state State
	ts    time.Time
}

// Store is the single source of truth for live device state and for the
// topic registry mapping subscribed topics to their owners. One mutex
// covers both: binding changes and state changes always happen in the
// same critical section, and no I/O is ever performed under the lock.
type Store struct {
	mu sync.RWMutex

	bindings  map[string]Ref           // inbound topic -> owner
	cmdOwners map[string]string        // command topic -> actuator ID
	sensors   map[string]*sensorLive   // by ID
	actuators map[string]*actuatorLive // by ID

	watchers    map[int]chan struct{}
	nextWatcher int
}

// NewStore creates an empty device state store.
func NewStore() *Store {
	return &Store{
		bindings:  make(map[string]Ref),
		cmdOwners: make(map[string]string),
		sensors:   make(map[string]*sensorLive),
		actuators: make(map[string]*actuatorLive),
		watchers:  make(map[int]chan struct{}),
	}
}

// Bind claims an inbound topic for a device. Binding the same topic to
// the same device again is a no-op; a different owner yields
// ErrTopicConflict and leaves the existing binding intact.
func (s *Store) Bind(topic string, ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindLocked(topic, ref)
}

// Unbind releases an inbound topic. Unbinding an unbound topic is a no-op.
func (s *Store) Unbind(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, topic)
}

// Resolve looks up the owner of an inbound topic.
func (s *Store) Resolve(topic string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.bindings[topic]
	return ref, ok
}

// Topics returns a sorted copy of all bound inbound topics. The broker
// connection manager iterates this on every (re)connect.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.bindings))
	for t := range s.bindings {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

func (s *Store) bindLocked(topic string, ref Ref) error {
	if owner, ok := s.bindings[topic]; ok && owner != ref {
		return ErrTopicConflict
	}
	s.bindings[topic] = ref
	return nil
}

// AddSensor registers a sensor and binds its topic in one critical
// section. Fails with ErrTopicConflict without side effects.
func (s *Store) AddSensor(sn Sensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bindLocked(sn.Topic, Ref{Kind: KindSensor, ID: sn.ID}); err != nil {
		return err
	}
	s.sensors[sn.ID] = &sensorLive{meta: sn}
	s.notifyLocked()
	return nil
}

// UpdateSensorMeta replaces a sensor's registry record, rebinding its
// topic when it changed. The previous topic is returned so the caller
// can unsubscribe it. The live reading is preserved.
func (s *Store) UpdateSensorMeta(sn Sensor) (oldTopic string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sensors[sn.ID]
	if !ok {
		return "", ErrNotFound
	}

	oldTopic = live.meta.Topic
	if sn.Topic != oldTopic {
		if err := s.bindLocked(sn.Topic, Ref{Kind: KindSensor, ID: sn.ID}); err != nil {
			return "", err
		}
		delete(s.bindings, oldTopic)
	}
	live.meta = sn
	s.notifyLocked()
	return oldTopic, nil
}

// RemoveSensor deletes a sensor and its binding, returning the topic to
// unsubscribe. Removing an unknown ID is a no-op.
func (s *Store) RemoveSensor(id string) (topic string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, found := s.sensors[id]
	if !found {
		return "", false
	}
	delete(s.bindings, live.meta.Topic)
	delete(s.sensors, id)
	s.notifyLocked()
	return live.meta.Topic, true
}

// AddActuator registers an actuator, claims its command topic and binds
// its status topic (when set) in one critical section. The initial
// state is StateOff, matching a freshly provisioned device.
func (s *Store) AddActuator(a Actuator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.cmdOwners[a.CommandTopic]; ok && owner != a.ID {
		return ErrTopicConflict
	}
	if a.StatusTopic != "" {
		if err := s.bindLocked(a.StatusTopic, Ref{Kind: KindActuator, ID: a.ID}); err != nil {
			return err
		}
	}
	s.cmdOwners[a.CommandTopic] = a.ID
	s.actuators[a.ID] = &actuatorLive{meta: a, state: StateOff}
	s.notifyLocked()
	return nil
}

// UpdateActuatorMeta replaces an actuator's registry record, rebinding
// the status topic and re-claiming the command topic as needed. The
// previous status topic is returned so the caller can unsubscribe it.
func (s *Store) UpdateActuatorMeta(a Actuator) (oldStatusTopic string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.actuators[a.ID]
	if !ok {
		return "", ErrNotFound
	}

	if owner, ok := s.cmdOwners[a.CommandTopic]; ok && owner != a.ID {
		return "", ErrTopicConflict
	}

	oldStatusTopic = live.meta.StatusTopic
	if a.StatusTopic != oldStatusTopic {
		if a.StatusTopic != "" {
			if err := s.bindLocked(a.StatusTopic, Ref{Kind: KindActuator, ID: a.ID}); err != nil {
				return "", err
			}
		}
		if oldStatusTopic != "" {
			delete(s.bindings, oldStatusTopic)
		}
	}

	if a.CommandTopic != live.meta.CommandTopic {
		delete(s.cmdOwners, live.meta.CommandTopic)
		s.cmdOwners[a.CommandTopic] = a.ID
	}

	live.meta = a
	s.notifyLocked()
	return oldStatusTopic, nil
}

// RemoveActuator deletes an actuator, its command-topic claim and its
// status binding, returning the status topic to unsubscribe (empty if
// the actuator had none).
func (s *Store) RemoveActuator(id string) (statusTopic string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, found := s.actuators[id]
	if !found {
		return "", false
	}
	if live.meta.StatusTopic != "" {
		delete(s.bindings, live.meta.StatusTopic)
	}
	delete(s.cmdOwners, live.meta.CommandTopic)
	delete(s.actuators, id)
	s.notifyLocked()
	return live.meta.StatusTopic, true
}

// UpdateSensorValue records a sensor reading. The value is either a
// float64 or the raw payload string. Unknown IDs are ignored.
func (s *Store) UpdateSensorValue(id string, value interface{}, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sensors[id]
	if !ok {
		return false
	}
	live.value = value
	live.ts = ts
	s.notifyLocked()
	return true
}

// SetActuatorState records an actuator state change. Both the optimistic
// path (command dispatch) and the authoritative path (status-topic
// message) call this; whichever write arrives last wins. A status echo
// is device truth and may legitimately revert an optimistic value.
func (s *Store) SetActuatorState(id string, state State, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.actuators[id]
	if !ok {
		return false
	}
	live.state = state
	live.ts = ts
	s.notifyLocked()
	return true
}

// Sensor returns a snapshot of one sensor.
func (s *Store) Sensor(id string) (SensorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live, ok := s.sensors[id]
	if !ok {
		return SensorSnapshot{}, false
	}
	return sensorSnapshot(live), true
}

// Actuator returns a snapshot of one actuator.
func (s *Store) Actuator(id string) (ActuatorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live, ok := s.actuators[id]
	if !ok {
		return ActuatorSnapshot{}, false
	}
	return actuatorSnapshot(live), true
}

// Snapshot returns a deep copy of all live device state, keyed by
// device ID. The maps are safe to serialize without holding the lock.
func (s *Store) Snapshot() (map[string]SensorSnapshot, map[string]ActuatorSnapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensors := make(map[string]SensorSnapshot, len(s.sensors))
	for id, live := range s.sensors {
		sensors[id] = sensorSnapshot(live)
	}
	actuators := make(map[string]ActuatorSnapshot, len(s.actuators))
	for id, live := range s.actuators {
		actuators[id] = actuatorSnapshot(live)
	}
	return sensors, actuators
}

func sensorSnapshot(live *sensorLive) SensorSnapshot {
	snap := SensorSnapshot{
		ID:        live.meta.ID,
		Name:      live.meta.Name,
		Topic:     live.meta.Topic,
		Unit:      live.meta.Unit,
		Value:     "N/A",
		Timestamp: "-",
		Default:   live.meta.Default,
	}
	if live.value != nil {
		snap.Value = live.value
		snap.Timestamp = live.ts.Format(TimestampFormat)
	}
	return snap
}

func actuatorSnapshot(live *actuatorLive) ActuatorSnapshot {
	snap := ActuatorSnapshot{
		ID:           live.meta.ID,
		Name:         live.meta.Name,
		CommandTopic: live.meta.CommandTopic,
		StatusTopic:  live.meta.StatusTopic,
		State:        live.state,
		DisplayState: live.state.Display(),
		Timestamp:    "-",
		Default:      live.meta.Default,
	}
	if !live.ts.IsZero() {
		snap.Timestamp = live.ts.Format(TimestampFormat)
	}
	return snap
}

// Watch registers a change listener. The returned channel receives a
// coalesced tick after every mutation; a consumer that lags misses
// ticks but never blocks a writer.
func (s *Store) Watch() (int, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextWatcher++
	id := s.nextWatcher
	ch := make(chan struct{}, 1)
	s.watchers[id] = ch
	return id, ch
}

// Unwatch removes a change listener.
func (s *Store) Unwatch(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, id)
}

func (s *Store) notifyLocked() {
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
