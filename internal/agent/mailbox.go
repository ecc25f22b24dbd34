package agent

import (
	"sync"

	"github.com/sweeney/irrigation-relay/internal/relay"
	"github.com/sweeney/irrigation-relay/internal/shadow"
)

// mailbox is a single-slot inbox for decoded deltas. The channel callback
// puts; the loop takes once per iteration. Deltas that arrive before the
// loop drains the slot are merged so that applying the merged delta leaves
// the controller where applying each in order would have.
type mailbox struct {
	mu      sync.Mutex
	pending shadow.Delta
	full    bool
	merged  int // deltas folded into the slot since the last take
}

func newMailbox() *mailbox {
	return &mailbox{}
}

func (m *mailbox) put(d shadow.Delta) {
	if d.Empty() {
		return
	}
	d = normalize(d)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		m.pending = d
		m.full = true
		return
	}
	m.pending = merge(m.pending, d)
	m.merged++
}

func (m *mailbox) take() (shadow.Delta, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		return shadow.Delta{}, 0, false
	}
	d, n := m.pending, m.merged
	m.pending = shadow.Delta{}
	m.full = false
	m.merged = 0
	return d, n, true
}

// normalize makes an explicit OFF carry a zero duration, since OFF cancels
// any window the same delta would open.
func normalize(d shadow.Delta) shadow.Delta {
	if d.State != nil && *d.State == relay.StateOff {
		d.DurationMs = u32(0)
	}
	return d
}

// merge folds next (already normalized) into prev.
func merge(prev, next shadow.Delta) shadow.Delta {
	r := prev
	if next.DurationMs != nil {
		switch {
		case *next.DurationMs != 0 && next.State == nil:
			// A new window opens the relay whatever prev asked for.
			r = shadow.Delta{DurationMs: next.DurationMs}
		case *next.DurationMs == 0:
			// Clearing prev's window leaves the relay open.
			if r.State == nil && r.DurationMs != nil && *r.DurationMs != 0 {
				r.State = stateOf(relay.StateOn)
			}
			r.DurationMs = next.DurationMs
		default:
			r.DurationMs = next.DurationMs
		}
	}
	if next.State != nil {
		r.State = next.State
	}
	return r
}

func u32(v uint32) *uint32 { return &v }

func stateOf(s relay.State) *relay.State { return &s }
