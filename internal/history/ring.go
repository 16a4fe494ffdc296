// Package history keeps a bounded in-memory log of dispatched commands.
package history

import (
	"sync"
	"time"
)

// Entry is one dispatched actuator command. Entries are immutable once
// appended.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	User         string    `json:"user"`
	ActuatorName string    `json:"actuator_name"`
	Command      string    `json:"command"` // resulting display state, e.g. "Ligado"
	Topic        string    `json:"topic"`
	Payload      string    `json:"payload"` // raw wire payload, e.g. "ON"
}

// Ring holds entries in memory with a fixed capacity. When full, the
// oldest entry is evicted first (FIFO). Cleared on process restart.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

// NewRing creates a ring with the given capacity.
func NewRing(maxSize int) *Ring {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Ring{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Append adds an entry, evicting the oldest when at capacity.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.maxSize {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, e)
}

// Tail returns the most recent n entries in chronological order
// (oldest of the slice first).
func (r *Ring) Tail(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	result := make([]Entry, n)
	copy(result, r.entries[len(r.entries)-n:])
	return result
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return r.maxSize
}
