package relay

import log "github.com/sirupsen/logrus"

// Controller owns the relay state and the optional timer window.
// Not safe for concurrent use; the control loop is its only caller.
type Controller struct {
	actuator Actuator
	state    State
	window   *TimerWindow
	counts   Counts
}

// NewController creates a controller with the relay OFF and drives the
// actuator to match.
func NewController(actuator Actuator) *Controller {
	c := &Controller{
		actuator: actuator,
		state:    StateOff,
	}
	c.write(StateOff)
	return c
}

// Apply handles a desired-state command. Either field may be nil, meaning
// no change for that field.
//
// A nonzero duration replaces the timer window starting at now; zero clears
// the window. The relay opens for a window on the next Tick. An explicit
// state is applied immediately, and an explicit OFF also cancels any window
// so that Tick cannot reopen it.
func (c *Controller) Apply(state *State, durationMs *uint32, now Millis) (Event, bool) {
	if durationMs != nil {
		d := *durationMs
		if d > MaxDurationMs {
			d = MaxDurationMs
		}
		if d == 0 {
			c.window = nil
		} else {
			c.window = &TimerWindow{DurationMs: d, Deadline: now + Millis(d)}
		}
	}

	if state == nil || (*state != StateOn && *state != StateOff) {
		return Event{}, false
	}
	if *state == StateOff {
		c.window = nil
	}
	return c.transition(*state, ReasonCommand, now)
}

// Tick evaluates the timer window against now: an expired window closes the
// relay, an active one opens it. Calling it repeatedly with the same now
// yields at most one event.
func (c *Controller) Tick(now Millis) (Event, bool) {
	if c.window == nil {
		return Event{}, false
	}

	if Reached(now, c.window.Deadline) {
		c.window = nil
		return c.transition(StateOff, ReasonTimerExpired, now)
	}

	if c.state == StateOff {
		return c.transition(StateOn, ReasonTimerStarted, now)
	}
	return Event{}, false
}

// Shutdown forces the relay OFF and drops the window.
func (c *Controller) Shutdown(now Millis) (Event, bool) {
	c.window = nil
	return c.transition(StateOff, ReasonShutdown, now)
}

// State returns the current logical relay state.
func (c *Controller) State() State {
	return c.state
}

// Window returns a copy of the active timer window, if any.
func (c *Controller) Window() (TimerWindow, bool) {
	if c.window == nil {
		return TimerWindow{}, false
	}
	return *c.window, true
}

// Counts returns the transition counts since boot.
func (c *Controller) Counts() Counts {
	return c.counts
}

// Report returns the state and remaining timer for the reported document.
func (c *Controller) Report(now Millis) Report {
	r := Report{State: c.state}
	if c.window != nil && !Reached(now, c.window.Deadline) {
		r.RemainingMs = Elapsed(c.window.Deadline, now)
	}
	return r
}

// transition applies next if it differs from the current state.
// Redundant writes are suppressed.
func (c *Controller) transition(next State, reason Reason, now Millis) (Event, bool) {
	if next == c.state {
		return Event{}, false
	}
	c.state = next
	c.write(next)
	if next == StateOn {
		c.counts.On++
	} else {
		c.counts.Off++
	}
	return Event{Time: now, State: next, Reason: reason}, true
}

func (c *Controller) write(s State) {
	if c.actuator == nil {
		return
	}
	if err := c.actuator.Set(s); err != nil {
		log.Printf("relay: write %s: %v", s, err)
	}
}
