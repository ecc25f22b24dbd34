package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

func TestRelayLevelInverted(t *testing.T) {
	if got := relayLevel(relay.StateOn); got != 0 {
		t.Errorf("ON: expected level 0, got %d", got)
	}
	if got := relayLevel(relay.StateOff); got != 1 {
		t.Errorf("OFF: expected level 1, got %d", got)
	}
	if got := relayLevel(""); got != 1 {
		t.Errorf("unknown state should fail safe to level 1, got %d", got)
	}
}

func TestFakeRelaySet(t *testing.T) {
	f := NewFakeRelay()

	if f.Current() != relay.StateOff {
		t.Errorf("expected OFF before any write, got %s", f.Current())
	}

	if err := f.Set(relay.StateOn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(relay.StateOff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(f.Writes))
	}
	if f.Levels[0] != 0 || f.Levels[1] != 1 {
		t.Errorf("expected levels [0 1], got %v", f.Levels)
	}
	if f.Current() != relay.StateOff {
		t.Errorf("expected current OFF, got %s", f.Current())
	}
}

func TestFakeRelayError(t *testing.T) {
	f := NewFakeRelay()
	f.SetError = errors.New("simulated error")

	err := f.Set(relay.StateOn)
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
	if len(f.Writes) != 1 {
		t.Errorf("write should still be recorded, got %d", len(f.Writes))
	}
}

func TestFakeRelayCloseAndReset(t *testing.T) {
	f := NewFakeRelay()
	f.Set(relay.StateOn)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || len(f.Writes) != 0 || len(f.Levels) != 0 {
		t.Errorf("reset did not clear state: %+v", f)
	}
}

func TestFakeIndicatorBlink(t *testing.T) {
	f := NewFakeIndicator()
	f.Blink(50 * time.Millisecond)
	f.Blink(50 * time.Millisecond)

	if f.Blinks != 2 {
		t.Errorf("expected 2 blinks, got %d", f.Blinks)
	}
	if f.LastBlink != 50*time.Millisecond {
		t.Errorf("unexpected blink duration %v", f.LastBlink)
	}
}
