// Package actuator drives the control output with hardware abstraction.
// The real implementation is software PWM on a Linux GPIO character device
// line. The fake implementation allows testing without hardware.
package actuator

import "time"

// Driver accepts control output values.
type Driver interface {
	// Write applies a new output level on the 0..FullScale duty scale.
	// Values outside the range are clamped. Write never blocks.
	Write(value float64) error

	// Close stops the output, leaving the pin driven low.
	Close() error
}

// FullScale is the value that maps to 100% duty. It matches the
// controller's default output range.
const FullScale = 255.0

// Defaults for the Raspberry Pi deployment.
const (
	DefaultChip      = "gpiochip0"
	DefaultPin       = 18 // BCM numbering; SSR gate drive
	DefaultPWMPeriod = 100 * time.Millisecond
)
