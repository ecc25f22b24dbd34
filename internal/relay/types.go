// Package relay contains the valve relay state machine.
// This package has no hardware or network dependencies and never sleeps.
// Time is always injected as a wrapping millisecond counter.
package relay

import "time"

// State represents the logical state of the relay.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Reason explains why the relay state changed.
type Reason string

const (
	ReasonCommand      Reason = "command"
	ReasonTimerStarted Reason = "timer_started"
	ReasonTimerExpired Reason = "timer_expired"
	ReasonShutdown     Reason = "shutdown"
)

// Millis is a monotonic millisecond counter that wraps at 2^32.
// Compare values only through Elapsed and Reached, never with < or >.
type Millis uint32

// MaxDurationMs is the longest timer window that wraparound-safe comparison
// can represent. Longer requests are clamped.
const MaxDurationMs = 1<<31 - 1

// Since converts the distance between start and now into a wrapping counter value.
func Since(start, now time.Time) Millis {
	return Millis(uint32(now.Sub(start).Milliseconds()))
}

// Elapsed returns the milliseconds from then to now, modulo 2^32.
func Elapsed(now, then Millis) uint32 {
	return uint32(now - then)
}

// Reached reports whether now is at or past deadline.
// Valid while the two are less than 2^31 ms apart.
func Reached(now, deadline Millis) bool {
	return int32(now-deadline) >= 0
}

// TimerWindow is an active "stay open for N ms" command.
type TimerWindow struct {
	DurationMs uint32
	Deadline   Millis
}

// Event represents a relay state transition to be reported.
type Event struct {
	Time   Millis
	State  State
	Reason Reason
}

// Counts tracks the number of relay transitions since boot.
type Counts struct {
	On  int
	Off int
}

// Actuator drives the physical relay.
type Actuator interface {
	Set(s State) error
}

// Report is the controller's view used for the reported shadow document.
type Report struct {
	State       State
	RemainingMs uint32
}
