// Package device holds the device registry and the live device state store.
package device

import "time"

// Kind discriminates what a topic binding points at.
type Kind int

const (
	KindSensor Kind = iota + 1
	KindActuator
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindActuator:
		return "actuator"
	default:
		return "unknown"
	}
}

// Ref identifies the device that owns a subscribed topic.
type Ref struct {
	Kind Kind
	ID   string
}

// State is the logical actuator state. Canonical values are StateOn,
// StateOff and StateUnknown; devices that report custom status strings
// produce opaque State values carried through as-is.
type State string

const (
	StateOn      State = "ON"
	StateOff     State = "OFF"
	StateUnknown State = "UNKNOWN"
)

// Display maps a logical state to its dashboard label.
func (s State) Display() string {
	switch s {
	case StateOn:
		return "Ligado"
	case StateOff:
		return "Desligado"
	case StateUnknown:
		return "Desconhecido"
	default:
		return string(s)
	}
}

// Sensor is the persisted registry record for a telemetry source.
// Live value and timestamp are owned by the Store, not by this record.
type Sensor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Topic     string    `json:"topic"`
	Unit      string    `json:"data_type"`
	Default   bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// Actuator is the persisted registry record for a controllable device.
// CommandTopic is write-only; StatusTopic, when set, is subscribed for
// authoritative state reports.
type Actuator struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CommandTopic string    `json:"command_topic"`
	StatusTopic  string    `json:"status_topic"`
	Default      bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

// TimestampFormat is the display format for last-update timestamps.
const TimestampFormat = "2006-01-02 15:04:05"

// SensorSnapshot is a sensor's registry record plus its live reading,
// shaped for the dashboard API.
type SensorSnapshot struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Topic     string      `json:"topic"`
	Unit      string      `json:"data_type"`
	Value     interface{} `json:"value"`     // float64, string, or "N/A" when unseen
	Timestamp string      `json:"timestamp"` // formatted, "-" when unseen
	Default   bool        `json:"is_default"`
}

// ActuatorSnapshot is an actuator's registry record plus its live state.
type ActuatorSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CommandTopic string `json:"command_topic"`
	StatusTopic  string `json:"status_topic,omitempty"`
	State        State  `json:"state"`
	DisplayState string `json:"display_state"`
	Timestamp    string `json:"timestamp"`
	Default      bool   `json:"is_default"`
}
