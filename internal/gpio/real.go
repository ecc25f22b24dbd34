//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

// RealRelay drives the relay through the Linux GPIO character device.
type RealRelay struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealRelay requests the relay line as an output, initially OFF.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Request HIGH so the active-low board keeps the valve closed at boot.
	line, err := c.RequestLine(pin, gpiocdev.AsOutput(levelRelayOff))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}
	return &RealRelay{chip: c, line: line}, nil
}

// Set drives the line to the level for s.
// Inverts: logical ON = raw 0, logical OFF = raw 1.
func (r *RealRelay) Set(s relay.State) error {
	if err := r.line.SetValue(relayLevel(s)); err != nil {
		return fmt.Errorf("set relay pin: %w", err)
	}
	return nil
}

// Close drives the relay OFF and releases the line.
// Reconfigures the pin to input with pull-up so the active-low board
// stays released while nothing is driving it.
func (r *RealRelay) Close() error {
	if r.line == nil {
		return nil
	}

	var errs []error
	if err := r.line.SetValue(levelRelayOff); err != nil {
		errs = append(errs, fmt.Errorf("drive relay off: %w", err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay pin: %w", err))
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealIndicator blinks an LED on a GPIO output.
type RealIndicator struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealIndicator requests the LED line as an output, initially off.
func NewRealIndicator(chip string, pin int) (*RealIndicator, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := c.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request led pin %d: %w", pin, err)
	}
	return &RealIndicator{chip: c, line: line}, nil
}

// Blink turns the LED on for d, then off for d.
func (r *RealIndicator) Blink(d time.Duration) error {
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("set led pin: %w", err)
	}
	time.Sleep(d)
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("set led pin: %w", err)
	}
	time.Sleep(d)
	return nil
}

// Close turns the LED off and releases the line.
func (r *RealIndicator) Close() error {
	if r.line == nil {
		return nil
	}
	r.line.SetValue(0)
	err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown)
	r.line.Close()
	r.chip.Close()
	if err != nil {
		return fmt.Errorf("reconfigure led pin: %w", err)
	}
	return nil
}
