package control

import "time"

// Controller is a discrete-time PID controller with anti-windup, sample-time
// gating, derivative-on-measurement and sensor-health interlocks. It is a
// single-owner value driven synchronously from one polling loop; it never
// blocks and holds no locks.
type Controller struct {
	drive   func(float64)
	reverse bool

	kp, ki, kd float64
	setpoint   float64

	enabled    bool
	errorState bool
	fault      Fault

	// Accumulator state
	integral   float64
	prevInput  float64
	lastError  float64
	lastUpdate time.Time

	// Component breakdown of the last accepted update
	pTerm, iTerm, dTerm float64
	output              float64

	// Limits
	outputMin, outputMax     float64
	integralMin, integralMax float64
	sampleTime               time.Duration

	// Stale-data detection
	staleEnabled  bool
	minRate       float64
	maxStale      time.Duration
	lastGoodTime  time.Time
	lastGoodValue float64

	// Safe-value limits
	safeEnabled      bool
	safeMin, safeMax float64
}

// New creates a disabled controller bound to the given actuator drive
// function. drive may be nil when no actuator is attached. If reverse is
// true the output and the component terms are negated before clamping.
func New(drive func(float64), reverse bool) *Controller {
	return &Controller{
		drive:       drive,
		reverse:     reverse,
		outputMin:   DefaultOutputMin,
		outputMax:   DefaultOutputMax,
		integralMin: DefaultIntegralMin,
		integralMax: DefaultIntegralMax,
		sampleTime:  DefaultSampleTime,
	}
}

// Begin sets the gains and setpoint, resets transient state and enables the
// controller.
func (c *Controller) Begin(g Gains, setpoint float64, now time.Time) {
	c.kp = g.Kp
	c.ki = g.Ki
	c.kd = g.Kd
	c.setpoint = setpoint
	c.Reset(now)
	c.Enable(now)
}

// Update runs one control cycle. It is safe to call at any frequency; the
// PID math only runs when at least the sample time has elapsed since the
// last accepted sample. A safety fault forces the controller into the error
// state without consuming a sample-time tick, so a later Enable resumes
// cleanly.
func (c *Controller) Update(input float64, now time.Time) {
	if !c.enabled {
		c.zeroOutput()
		c.driveOutput(0)
		return
	}

	if f := c.checkSafety(input, now); f != FaultNone {
		c.fault = f
		c.errorState = true
		c.enabled = false
		c.zeroOutput()
		c.driveOutput(0)
		return
	}

	elapsed := now.Sub(c.lastUpdate)
	if elapsed < c.sampleTime {
		return
	}
	dt := elapsed.Seconds()

	err := c.setpoint - input
	c.lastError = err

	c.pTerm = c.kp * err

	c.integral += c.ki * err * dt
	c.integral = clamp(c.integral, c.integralMin, c.integralMax)
	c.iTerm = c.integral

	// Derivative on measurement, not on error: a setpoint step must not
	// produce a derivative kick.
	c.dTerm = 0
	if dt > 0 {
		c.dTerm = c.kd * (input - c.prevInput) / dt
	}

	// D is subtracted: derivative-on-measurement has the opposite sign of
	// derivative-on-error.
	c.output = c.pTerm + c.iTerm - c.dTerm

	if c.reverse {
		c.output = -c.output
		c.pTerm = -c.pTerm
		c.iTerm = -c.iTerm
		c.dTerm = -c.dTerm
	}

	c.output = clamp(c.output, c.outputMin, c.outputMax)

	c.prevInput = input
	c.lastUpdate = now

	c.driveOutput(c.output)
}

// Enable turns the controller on. It clears the error state, restarts the
// sample-time clock and the stale-data clock. Enable is the single resume
// action after a fault (ClearError alone does not resume control).
func (c *Controller) Enable(now time.Time) {
	c.enabled = true
	c.errorState = false
	c.fault = FaultNone
	c.lastUpdate = now
	c.lastGoodTime = now
}

// Disable turns the controller off and forces the output to zero. Safety
// checks do not run while disabled, so a disabled controller cannot enter
// the error state.
func (c *Controller) Disable() {
	c.enabled = false
	c.zeroOutput()
	c.driveOutput(0)
}

// IsEnabled reports whether updates currently run the PID math.
func (c *Controller) IsEnabled() bool {
	return c.enabled
}

// SetSetpoint changes the target process value.
func (c *Controller) SetSetpoint(sp float64) {
	c.setpoint = sp
}

// SetGains replaces all three gains and zeroes the integral accumulator so
// that windup built up under the old tuning is not carried over.
func (c *Controller) SetGains(g Gains) {
	c.kp = g.Kp
	c.ki = g.Ki
	c.kd = g.Kd
	c.integral = 0
}

// SetOutputLimits sets the output clamp range. Silently rejects min >= max,
// preserving the previous limits. The current output is re-clamped.
func (c *Controller) SetOutputLimits(min, max float64) {
	if min >= max {
		return
	}
	c.outputMin = min
	c.outputMax = max
	c.output = clamp(c.output, min, max)
}

// SetIntegralLimits sets the anti-windup clamp range. Silently rejects
// min >= max. The current accumulator is re-clamped.
func (c *Controller) SetIntegralLimits(min, max float64) {
	if min >= max {
		return
	}
	c.integralMin = min
	c.integralMax = max
	c.integral = clamp(c.integral, min, max)
}

// SetSampleTime sets the minimum interval between accepted updates.
// Non-positive values are rejected.
func (c *Controller) SetSampleTime(d time.Duration) {
	if d > 0 {
		c.sampleTime = d
	}
}

// Reset clears the accumulator state, the component terms and the output.
// Gains, limits, safety configuration and the enabled flag are untouched.
func (c *Controller) Reset(now time.Time) {
	c.integral = 0
	c.prevInput = 0
	c.output = 0
	c.lastError = 0
	c.pTerm = 0
	c.iTerm = 0
	c.dTerm = 0
	c.lastUpdate = now
	c.lastGoodTime = now
	c.lastGoodValue = 0
}

// Getters for the last accepted update.

func (c *Controller) Output() float64       { return c.output }
func (c *Controller) Proportional() float64 { return c.pTerm }
func (c *Controller) Integral() float64     { return c.iTerm }
func (c *Controller) Derivative() float64   { return c.dTerm }
func (c *Controller) Error() float64        { return c.lastError }

func (c *Controller) Kp() float64               { return c.kp }
func (c *Controller) Ki() float64               { return c.ki }
func (c *Controller) Kd() float64               { return c.kd }
func (c *Controller) Setpoint() float64         { return c.setpoint }
func (c *Controller) SampleTime() time.Duration { return c.sampleTime }

func (c *Controller) zeroOutput() {
	c.output = 0
	c.pTerm = 0
	c.iTerm = 0
	c.dTerm = 0
	c.lastError = 0
}

func (c *Controller) driveOutput(v float64) {
	if c.drive != nil {
		c.drive(v)
	}
}

func clamp(v, min, max float64) float64 {
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}
