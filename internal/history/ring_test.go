package history

import (
	"fmt"
	"testing"
	"time"
)

func entry(n int) Entry {
	return Entry{
		Timestamp:    time.Date(2025, 1, 1, 0, 0, n, 0, time.UTC),
		User:         "admin",
		ActuatorName: fmt.Sprintf("Device %d", n),
		Command:      "Ligado",
		Topic:        "iot/test/command",
		Payload:      "ON",
	}
}

// TestFIFOEviction verifies oldest-first eviction at capacity
func TestFIFOEviction(t *testing.T) {
	ring := NewRing(50)

	for i := 1; i <= 51; i++ {
		ring.Append(entry(i))
	}

	if ring.Len() != 50 {
		t.Fatalf("Expected 50 retained entries, got %d", ring.Len())
	}

	all := ring.Tail(50)
	if all[0].ActuatorName != "Device 2" {
		t.Errorf("Expected oldest entry to be #2 after eviction, got %s", all[0].ActuatorName)
	}
	if all[49].ActuatorName != "Device 51" {
		t.Errorf("Expected newest entry to be #51, got %s", all[49].ActuatorName)
	}
}

// TestTailOrder verifies Tail returns chronological order, oldest first
func TestTailOrder(t *testing.T) {
	ring := NewRing(50)

	for i := 1; i <= 51; i++ {
		ring.Append(entry(i))
	}

	tail := ring.Tail(10)
	if len(tail) != 10 {
		t.Fatalf("Expected 10 entries, got %d", len(tail))
	}

	for i, e := range tail {
		expected := fmt.Sprintf("Device %d", 42+i)
		if e.ActuatorName != expected {
			t.Errorf("Tail[%d]: expected %s, got %s", i, expected, e.ActuatorName)
		}
	}
}

// TestTailBeyondLength returns everything when n exceeds the ring size
func TestTailBeyondLength(t *testing.T) {
	ring := NewRing(50)
	ring.Append(entry(1))
	ring.Append(entry(2))

	tail := ring.Tail(10)
	if len(tail) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(tail))
	}
	if tail[0].ActuatorName != "Device 1" {
		t.Errorf("Expected oldest first, got %s", tail[0].ActuatorName)
	}
}

// TestTailNegative verifies a negative count yields an empty slice
func TestTailNegative(t *testing.T) {
	ring := NewRing(50)
	ring.Append(entry(1))

	if got := ring.Tail(-1); len(got) != 0 {
		t.Errorf("Expected empty tail for negative count, got %d entries", len(got))
	}
}

// TestEmptyRing verifies Tail on an empty ring
func TestEmptyRing(t *testing.T) {
	ring := NewRing(50)

	if got := ring.Tail(10); len(got) != 0 {
		t.Errorf("Expected empty tail, got %d entries", len(got))
	}
	if ring.Len() != 0 {
		t.Errorf("Expected empty ring, got %d", ring.Len())
	}
}

// TestMinimumCapacity verifies the capacity floor
func TestMinimumCapacity(t *testing.T) {
	ring := NewRing(0)
	ring.Append(entry(1))
	ring.Append(entry(2))

	if ring.Len() != 1 {
		t.Fatalf("Expected capacity floor of 1, got %d entries", ring.Len())
	}
	if ring.Tail(1)[0].ActuatorName != "Device 2" {
		t.Errorf("Expected only the newest entry to survive")
	}
}
