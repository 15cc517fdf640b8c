//go:build !linux

package actuator

import (
	"errors"
	"time"
)

// PWM is not available on non-Linux platforms.
type PWM struct{}

// NewPWM returns an error on non-Linux platforms.
func NewPWM(chipName string, pin int, period time.Duration) (*PWM, error) {
	return nil, errors.New("actuator: not supported on this platform (requires Linux)")
}

// Write is not implemented on non-Linux platforms.
func (p *PWM) Write(value float64) error {
	return errors.New("actuator: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *PWM) Close() error {
	return nil
}
