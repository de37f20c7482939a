package og

import (
	"testing"
	"time"
)

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}

	for _, tc := range testCases {
		if got := b.Next(tc.attempt); got != tc.expected {
			t.Fatalf("attempt %d mismatch! should be %s but got %s", tc.attempt, tc.expected, got)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}

	for i := 0; i < 200; i++ {
		got := b.Next(2)
		if got < 100*time.Millisecond || got > 300*time.Millisecond {
			t.Fatalf("jittered backoff out of bounds: %s", got)
		}
	}
}

func TestBackoffZeroValueDefaults(t *testing.T) {
	var b Backoff
	if got := b.Next(1); got != 100*time.Millisecond {
		t.Fatalf("zero-value min mismatch! should be 100ms but got %s", got)
	}
	if got := b.Next(100); got != 30*time.Second {
		t.Fatalf("zero-value cap mismatch! should be 30s but got %s", got)
	}
}
