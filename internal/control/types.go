// Package control contains the pure PID control algorithm and its safety
// state machine. This package has NO external dependencies (no GPIO, serial,
// MQTT, OS, or time.Sleep). Time is always injectable via time.Time parameters.
package control

import "time"

// Fault identifies the condition that tripped the error state.
type Fault string

const (
	FaultNone           Fault = ""
	FaultInvalidReading Fault = "INVALID_READING"
	FaultOutOfSafeRange Fault = "OUT_OF_SAFE_RANGE"
	FaultStaleData      Fault = "STALE_DATA"
)

// Default limits and timing, matching the classic 8-bit PWM output range.
const (
	DefaultOutputMin   = 0.0
	DefaultOutputMax   = 255.0
	DefaultIntegralMin = -1000.0
	DefaultIntegralMax = 1000.0
	DefaultSampleTime  = 100 * time.Millisecond
)

// StaleDeadband is the band around the setpoint within which the process
// value is not expected to move. Stale-data detection only accumulates time
// while the value is outside this band.
const StaleDeadband = 0.1

// Gains bundles the three PID coefficients.
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}
