package engine

import (
	"errors"
	"testing"
	"time"
)

func TestTickSourceForwardOnly(t *testing.T) {
	bars := flatBars(3, 15*time.Minute, 100, 105, 95, 100)
	src := NewTickSource(bars)

	var prev time.Time
	for i := 0; i < len(bars); i++ {
		tick, err := src.Next()
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if !tick.Timestamp.After(prev) {
			t.Fatalf("tick %d timestamp %v not after %v", i, tick.Timestamp, prev)
		}
		prev = tick.Timestamp
	}

	if src.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", src.Remaining())
	}
	if _, err := src.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	// Exhaustion is sticky.
	if _, err := src.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("second err = %v, want ErrExhausted", err)
	}
}

func TestTickSourceEmpty(t *testing.T) {
	src := NewTickSource(nil)
	if _, err := src.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}
