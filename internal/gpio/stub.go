//go:build !linux

package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/irrigation-relay/internal/relay"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(chip string, pin int) (*RealRelay, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (r *RealRelay) Set(s relay.State) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}

// RealIndicator is not available on non-Linux platforms.
type RealIndicator struct{}

// NewRealIndicator returns an error on non-Linux platforms.
func NewRealIndicator(chip string, pin int) (*RealIndicator, error) {
	return nil, errUnsupported
}

// Blink is not implemented on non-Linux platforms.
func (r *RealIndicator) Blink(d time.Duration) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealIndicator) Close() error {
	return nil
}
