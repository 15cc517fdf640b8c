package control

import (
	"math"
	"time"
)

// SetStaleDataDetection configures the stale-data interlock: the controller
// faults when the process value, while outside the deadband around the
// setpoint, fails to move at least minRate units per second for longer than
// maxTime. Call EnableStaleDataDetection to arm it.
func (c *Controller) SetStaleDataDetection(minRate float64, maxTime time.Duration) {
	c.minRate = minRate
	c.maxStale = maxTime
}

// EnableStaleDataDetection arms stale-data detection and restarts its clock.
func (c *Controller) EnableStaleDataDetection(now time.Time) {
	c.staleEnabled = true
	c.lastGoodTime = now
}

// DisableStaleDataDetection disarms stale-data detection.
func (c *Controller) DisableStaleDataDetection() {
	c.staleEnabled = false
}

// SetSafeValueLimits sets the range of plausible process values. Silently
// rejects min >= max. Call EnableSafeValueLimits to arm the check.
func (c *Controller) SetSafeValueLimits(min, max float64) {
	if min >= max {
		return
	}
	c.safeMin = min
	c.safeMax = max
}

// EnableSafeValueLimits arms the safe-value range check.
func (c *Controller) EnableSafeValueLimits() {
	c.safeEnabled = true
}

// DisableSafeValueLimits disarms the safe-value range check.
func (c *Controller) DisableSafeValueLimits() {
	c.safeEnabled = false
}

// InError reports whether a fault has latched the controller off. The flag
// is sticky: it survives until ClearError or Enable.
func (c *Controller) InError() bool {
	return c.errorState
}

// LastFault returns the condition that tripped the current error state, or
// FaultNone.
func (c *Controller) LastFault() Fault {
	return c.fault
}

// ClearError clears the sticky error flag without resuming control; the
// controller stays disabled until Enable is called.
func (c *Controller) ClearError() {
	c.errorState = false
	c.fault = FaultNone
}

// checkSafety runs the fault checks in priority order. It only runs while
// the controller is enabled. The NaN check is always active and cannot be
// disabled.
func (c *Controller) checkSafety(input float64, now time.Time) Fault {
	if math.IsNaN(input) {
		return FaultInvalidReading
	}

	if c.safeEnabled && (input < c.safeMin || input > c.safeMax) {
		return FaultOutOfSafeRange
	}

	if c.staleEnabled {
		// At the setpoint the value is not expected to move; restart the
		// staleness clock.
		if math.Abs(input-c.setpoint) <= StaleDeadband {
			c.lastGoodTime = now
			c.lastGoodValue = input
			return FaultNone
		}

		elapsed := now.Sub(c.lastGoodTime)
		if sec := elapsed.Seconds(); sec > 0 {
			rate := math.Abs(input-c.lastGoodValue) / sec
			if rate >= c.minRate {
				// Moving fast enough: this is the new "last good" observation.
				c.lastGoodTime = now
				c.lastGoodValue = input
				return FaultNone
			}
		}

		if elapsed > c.maxStale {
			return FaultStaleData
		}
	}

	return FaultNone
}
