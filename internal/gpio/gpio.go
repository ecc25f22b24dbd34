// Package gpio drives the valve relay and the diagnostic LED with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

// Relay drives the valve relay output.
type Relay interface {
	// Set drives the relay to the logical state.
	// The relay board is active-low: logical ON = line LOW (0),
	// logical OFF = line HIGH (1).
	Set(s relay.State) error

	// Close releases GPIO resources, leaving the valve closed.
	Close() error
}

// Indicator is the diagnostic LED (active-high).
type Indicator interface {
	// Blink turns the LED on for d, then off for d. Blocks for 2*d.
	Blink(d time.Duration) error

	// Close releases GPIO resources.
	Close() error
}

// Default chip and pin definitions (BCM numbering)
const (
	DefaultChip     = "gpiochip0"
	DefaultPinRelay = 17
	DefaultPinLED   = 27
)

// Electrical levels for the active-low relay board.
const (
	levelRelayOn  = 0
	levelRelayOff = 1
)

// relayLevel maps a logical state to the line level.
func relayLevel(s relay.State) int {
	if s == relay.StateOn {
		return levelRelayOn
	}
	return levelRelayOff
}
