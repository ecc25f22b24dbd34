// Package shadow encodes and decodes the subset of the device shadow
// document used by the valve: state.desired.* inbound, state.reported.* outbound.
package shadow

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

// Document limits.
const (
	// MaxDeltaBytes bounds inbound documents; larger payloads are ignored.
	MaxDeltaBytes = 1024

	// MaxReportFields is the most scalar fields a reported document may carry.
	MaxReportFields = 15

	// DefaultReportBytes sizes the encoder buffer for a full report.
	DefaultReportBytes = 256
)

// ErrReportTooLarge is returned when a report does not fit the encoder buffer.
var ErrReportTooLarge = errors.New("shadow: report exceeds buffer")

// Delta is a decoded desired-state command. A nil field means no change.
type Delta struct {
	State      *relay.State
	DurationMs *uint32
}

// Empty reports whether the delta requests no change at all.
func (d Delta) Empty() bool {
	return d.State == nil && d.DurationMs == nil
}

type deltaDoc struct {
	State *struct {
		Desired *struct {
			RelayState   json.RawMessage `json:"relay_state"`
			RelayOnTimer json.RawMessage `json:"relay_on_timer"`
		} `json:"desired"`
	} `json:"state"`
}

// DecodeDelta extracts state.desired.relay_state and state.desired.relay_on_timer.
// Malformed, oversized or reported-only documents yield an empty Delta;
// an invalid field is dropped without affecting the other.
func DecodeDelta(raw []byte) Delta {
	if len(raw) == 0 || len(raw) > MaxDeltaBytes {
		return Delta{}
	}
	// goccy decodes numbers leniently (it accepts 01); reject anything that is
	// not strict JSON before extracting fields.
	if !stdjson.Valid(raw) {
		return Delta{}
	}

	var doc deltaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Delta{}
	}
	if doc.State == nil || doc.State.Desired == nil {
		return Delta{}
	}

	var d Delta
	if v, ok := parseUint(doc.State.Desired.RelayState, 8); ok {
		switch v {
		case 0:
			s := relay.StateOff
			d.State = &s
		case 1:
			s := relay.StateOn
			d.State = &s
		}
	}
	if v, ok := parseUint(doc.State.Desired.RelayOnTimer, 32); ok {
		ms := uint32(v)
		d.DurationMs = &ms
	}
	return d
}

// parseUint accepts only a bare nonnegative JSON integer.
func parseUint(raw json.RawMessage, bits int) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (len(raw) > 1 && raw[0] == '0') {
		return 0, false
	}
	v, err := strconv.ParseUint(string(raw), 10, bits)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Report is the outbound reported state.
type Report struct {
	RelayState   relay.State
	RelayOnTimer uint32
}

// Auxiliary telemetry placeholders kept for shadow-schema compatibility
// with earlier device revisions.
const (
	auxX = 1
	auxY = 2
	auxZ = 3
)

type reportDoc struct {
	State reportState `json:"state"`
}

type reportState struct {
	Reported reportedFields `json:"reported"`
}

// Field order here is the wire order.
type reportedFields struct {
	RelayState   int    `json:"relay_state"`
	RelayOnTimer uint32 `json:"relay_on_timer"`
	AX           int    `json:"a_x"`
	AY           int    `json:"a_y"`
	AZ           int    `json:"a_z"`
}

// Encoder writes reports into a fixed-capacity buffer.
// Not safe for concurrent use.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder whose output never exceeds size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Encode renders r as {"state":{"reported":{...}}}. The returned slice aliases
// the encoder buffer and is valid until the next call. If the document would
// not fit, ErrReportTooLarge is returned and the buffer is left untouched.
func (e *Encoder) Encode(r Report) ([]byte, error) {
	doc := reportDoc{State: reportState{Reported: reportedFields{
		RelayState:   stateBit(r.RelayState),
		RelayOnTimer: r.RelayOnTimer,
		AX:           auxX,
		AY:           auxY,
		AZ:           auxZ,
	}}}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if len(out) > cap(e.buf) {
		return nil, ErrReportTooLarge
	}
	e.buf = append(e.buf[:0], out...)
	return e.buf, nil
}

type desiredDoc struct {
	State desiredState `json:"state"`
}

type desiredState struct {
	Desired desiredFields `json:"desired"`
}

type desiredFields struct {
	RelayState   *int    `json:"relay_state,omitempty"`
	RelayOnTimer *uint32 `json:"relay_on_timer,omitempty"`
}

// EncodeDesired renders a desired-state command as sent by an operator.
func EncodeDesired(d Delta) ([]byte, error) {
	var doc desiredDoc
	if d.State != nil {
		bit := stateBit(*d.State)
		doc.State.Desired.RelayState = &bit
	}
	doc.State.Desired.RelayOnTimer = d.DurationMs
	return json.Marshal(doc)
}

func stateBit(s relay.State) int {
	if s == relay.StateOn {
		return 1
	}
	return 0
}
