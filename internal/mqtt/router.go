package mqtt

import (
	"log"
	"strconv"
	"strings"
	"time"
	"unicode"

	"iotview/internal/device"
)

// Router is the single inbound-message handler: it resolves the topic
// against the registry and applies a typed update to the state store.
// It never publishes.
type Router struct {
	store  *device.Store
	logger *log.Logger
}

// NewRouter creates a message router.
func NewRouter(store *device.Store, logger *log.Logger) *Router {
	return &Router{store: store, logger: logger}
}

// Handle processes one inbound message. Payloads are normalized
// (trimmed, uppercased) before dispatch.
func (r *Router) Handle(topic, raw string) {
	payload := strings.ToUpper(strings.TrimSpace(raw))

	ref, ok := r.store.Resolve(topic)
	if !ok {
		// Not an error: broker subscriptions can lag registry edits.
		if r.logger != nil {
			r.logger.Printf("[Router] Unhandled topic %s (payload %q)", topic, payload)
		}
		return
	}

	now := time.Now()
	switch ref.Kind {
	case device.KindSensor:
		// Numeric when possible, raw text otherwise: some telemetry is
		// intentionally textual and must never be dropped.
		if f, err := strconv.ParseFloat(payload, 64); err == nil {
			r.store.UpdateSensorValue(ref.ID, f, now)
		} else {
			r.store.UpdateSensorValue(ref.ID, payload, now)
		}

	case device.KindActuator:
		var state device.State
		switch payload {
		case "ON":
			state = device.StateOn
		case "OFF":
			state = device.StateOff
		default:
			// Custom status strings pass through as opaque labels.
			state = device.State(capitalize(payload))
		}
		r.store.SetActuatorState(ref.ID, state, now)
	}
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
