//go:build !linux

package gpio

import "errors"

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(cfg Config) (*RealPins, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetTrigger is not implemented on non-Linux platforms.
func (p *RealPins) SetTrigger(high bool) error {
	return errors.New("gpio: not supported")
}

// Echo is not implemented on non-Linux platforms.
func (p *RealPins) Echo() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetIndicator is not implemented on non-Linux platforms.
func (p *RealPins) SetIndicator(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *RealPins) Close() error {
	return nil
}
