package gpio

import (
	"time"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

// FakeRelay is a test double that records relay writes.
type FakeRelay struct {
	// Writes contains every logical state written, in order.
	Writes []relay.State

	// Levels contains the electrical level for each write.
	Levels []int

	// Closed tracks if Close was called
	Closed bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// NewFakeRelay creates a FakeRelay.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{}
}

// Set records the write. The write is recorded even when SetError is set.
func (f *FakeRelay) Set(s relay.State) error {
	f.Writes = append(f.Writes, s)
	f.Levels = append(f.Levels, relayLevel(s))
	return f.SetError
}

// Current returns the last written state, or OFF if nothing was written.
func (f *FakeRelay) Current() relay.State {
	if len(f.Writes) == 0 {
		return relay.StateOff
	}
	return f.Writes[len(f.Writes)-1]
}

// Close marks the relay as closed.
func (f *FakeRelay) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeRelay) Reset() {
	f.Writes = nil
	f.Levels = nil
	f.Closed = false
	f.SetError = nil
}

// FakeIndicator counts blinks without sleeping.
type FakeIndicator struct {
	Blinks    int
	LastBlink time.Duration
	Closed    bool
}

// NewFakeIndicator creates a FakeIndicator.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Blink records the blink.
func (f *FakeIndicator) Blink(d time.Duration) error {
	f.Blinks++
	f.LastBlink = d
	return nil
}

// Close marks the indicator as closed.
func (f *FakeIndicator) Close() error {
	f.Closed = true
	return nil
}
