package control

import (
	"math"
	"testing"
	"time"
)

func newEnabled(t *testing.T) *Controller {
	t.Helper()
	c := New(nil, false)
	c.Begin(Gains{Kp: 2, Ki: 0.5, Kd: 1}, 25, base)
	return c
}

func TestNaNInputForcesErrorSameCall(t *testing.T) {
	c := newEnabled(t)

	c.Update(math.NaN(), at(100))

	if !c.InError() {
		t.Fatal("NaN input must set error state on the same call")
	}
	if c.IsEnabled() {
		t.Error("error state must force-disable")
	}
	if c.Output() != 0 {
		t.Errorf("expected zero output in error state, got %v", c.Output())
	}
	if c.LastFault() != FaultInvalidReading {
		t.Errorf("expected %s, got %s", FaultInvalidReading, c.LastFault())
	}
}

func TestNaNCheckCannotBeDisabled(t *testing.T) {
	c := newEnabled(t)
	// Safety features all off; the NaN check is always armed.
	c.DisableStaleDataDetection()
	c.DisableSafeValueLimits()

	c.Update(math.NaN(), at(100))
	if !c.InError() {
		t.Error("NaN check must be active regardless of safety configuration")
	}
}

func TestSafeValueLimits(t *testing.T) {
	tests := []struct {
		name      string
		input     float64
		wantError bool
	}{
		{"inside range", 50, false},
		{"at lower bound", 0, false},
		{"at upper bound", 100, false},
		{"above range", 150, true},
		{"below range", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newEnabled(t)
			c.SetSafeValueLimits(0, 100)
			c.EnableSafeValueLimits()

			c.Update(tt.input, at(100))

			if c.InError() != tt.wantError {
				t.Errorf("input %v: error state %v, want %v", tt.input, c.InError(), tt.wantError)
			}
			if tt.wantError {
				if c.LastFault() != FaultOutOfSafeRange {
					t.Errorf("expected %s, got %s", FaultOutOfSafeRange, c.LastFault())
				}
				if c.Output() != 0 {
					t.Errorf("expected zero output, got %v", c.Output())
				}
			}
		})
	}
}

func TestSafeValueLimitsDisarmed(t *testing.T) {
	c := newEnabled(t)
	c.SetSafeValueLimits(0, 100)
	// Never armed: out-of-range values pass.
	c.Update(150, at(100))
	if c.InError() {
		t.Error("disarmed safe-value limits must not trip")
	}
}

func TestSafeValueLimitsRejectInvalidRange(t *testing.T) {
	c := newEnabled(t)
	c.SetSafeValueLimits(0, 100)
	c.SetSafeValueLimits(50, 50) // rejected, keeps 0..100
	c.SetSafeValueLimits(90, 10) // rejected
	c.EnableSafeValueLimits()

	c.Update(80, at(100))
	if c.InError() {
		t.Error("input 80 should be inside the preserved 0..100 range")
	}
}

func TestStaleDataFrozenInputFaults(t *testing.T) {
	c := newEnabled(t) // setpoint 25
	c.SetStaleDataDetection(0.1, 5000*time.Millisecond)
	c.EnableStaleDataDetection(base)

	// Input frozen 10 units away from setpoint. The first sample restarts
	// the clock (large apparent movement from the zero-initialized last
	// good value); after that the rate stays at zero.
	ms := 100
	c.Update(35, at(ms))
	for !c.InError() && ms < 20000 {
		ms += 100
		c.Update(35, at(ms))
	}

	if !c.InError() {
		t.Fatal("frozen input never tripped stale-data detection")
	}
	if c.LastFault() != FaultStaleData {
		t.Errorf("expected %s, got %s", FaultStaleData, c.LastFault())
	}
	// Clock restarted at the first sample (100ms); the window is 5000ms.
	if ms <= 5100 {
		t.Errorf("tripped too early at %dms", ms)
	}
	if ms > 5400 {
		t.Errorf("tripped too late at %dms", ms)
	}
}

func TestStaleDataDriftingInputStaysHealthy(t *testing.T) {
	c := newEnabled(t) // setpoint 25
	c.SetStaleDataDetection(0.1, 5000*time.Millisecond)
	c.EnableStaleDataDetection(base)

	// Input drifts at 0.5 units/s, far from setpoint: healthy forever.
	input := 40.0
	for ms := 100; ms <= 30000; ms += 100 {
		c.Update(input, at(ms))
		if c.InError() {
			t.Fatalf("drifting input tripped stale-data detection at %dms", ms)
		}
		input += 0.05 // 0.05 per 100ms = 0.5/s
	}
}

func TestStaleDataWithinDeadbandNeverFaults(t *testing.T) {
	c := newEnabled(t) // setpoint 25
	c.SetStaleDataDetection(0.1, 5000*time.Millisecond)
	c.EnableStaleDataDetection(base)

	// Frozen input, but within the deadband of the setpoint: at the target
	// the value is not expected to move.
	for ms := 100; ms <= 30000; ms += 100 {
		c.Update(25.05, at(ms))
		if c.InError() {
			t.Fatalf("in-deadband input tripped stale-data detection at %dms", ms)
		}
	}
}

func TestStaleDataDisarmed(t *testing.T) {
	c := newEnabled(t)
	c.SetStaleDataDetection(0.1, 5000*time.Millisecond)
	// Never armed.
	for ms := 100; ms <= 10000; ms += 100 {
		c.Update(35, at(ms))
	}
	if c.InError() {
		t.Error("disarmed stale-data detection must not trip")
	}
}

func TestFaultDoesNotConsumeSampleTick(t *testing.T) {
	var drives []float64
	c := New(func(v float64) { drives = append(drives, v) }, false)
	c.Begin(Gains{Kp: 2, Ki: 0, Kd: 0}, 100, base)

	c.Update(50, at(100))
	if c.Output() != 100 {
		t.Fatalf("expected output 100, got %v", c.Output())
	}

	c.Update(math.NaN(), at(150))
	if !c.InError() {
		t.Fatal("expected error state")
	}
	if last := drives[len(drives)-1]; last != 0 {
		t.Errorf("expected actuator driven to 0 on fault, got %v", last)
	}

	// Recover: the fault did not advance the sample clock, and Enable
	// restarts it, so the next full interval is accepted.
	c.ClearError()
	c.Enable(at(200))
	c.Update(50, at(300))
	if c.Output() != 100 {
		t.Errorf("expected output 100 after recovery, got %v", c.Output())
	}
}

func TestErrorStateIsSticky(t *testing.T) {
	c := newEnabled(t)
	c.Update(math.NaN(), at(100))
	if !c.InError() {
		t.Fatal("expected error state")
	}

	// Updates while in error keep output at zero and the flag set.
	for i := 2; i <= 10; i++ {
		c.Update(25, at(i*100))
		if !c.InError() {
			t.Fatal("error state must be sticky across updates")
		}
		if c.Output() != 0 {
			t.Errorf("expected zero output in error state, got %v", c.Output())
		}
	}
}

func TestClearErrorAloneDoesNotResume(t *testing.T) {
	c := newEnabled(t)
	c.Update(math.NaN(), at(100))

	c.ClearError()
	if c.InError() {
		t.Error("ClearError must clear the flag")
	}
	if c.IsEnabled() {
		t.Error("ClearError must not re-enable the controller")
	}

	c.Update(20, at(300))
	if c.Output() != 0 {
		t.Errorf("cleared-but-disabled controller produced output %v", c.Output())
	}
}

func TestEnableClearsErrorState(t *testing.T) {
	c := newEnabled(t)
	c.Update(math.NaN(), at(100))
	if !c.InError() {
		t.Fatal("expected error state")
	}

	// Enable is the single resume action: it clears the flag too.
	c.Enable(at(200))
	if c.InError() {
		t.Error("Enable must reset the error state")
	}
	if !c.IsEnabled() {
		t.Error("Enable must enable")
	}
	if c.LastFault() != FaultNone {
		t.Errorf("expected fault cleared, got %s", c.LastFault())
	}
}

func TestDisabledControllerCannotEnterError(t *testing.T) {
	c := newEnabled(t)
	c.SetSafeValueLimits(0, 100)
	c.EnableSafeValueLimits()
	c.Disable()

	// NaN and out-of-range inputs while disabled: safety checks do not run.
	c.Update(math.NaN(), at(100))
	c.Update(500, at(200))

	if c.InError() {
		t.Error("disabled controller must not enter error state")
	}
	if c.Output() != 0 {
		t.Errorf("expected zero output, got %v", c.Output())
	}
}

func TestEnableRestartsStaleClock(t *testing.T) {
	c := newEnabled(t) // setpoint 25
	c.SetStaleDataDetection(0.1, 1000*time.Millisecond)
	c.EnableStaleDataDetection(base)

	// Trip the detector with a frozen far value.
	ms := 100
	c.Update(35, at(ms))
	for !c.InError() && ms < 10000 {
		ms += 100
		c.Update(35, at(ms))
	}
	if !c.InError() {
		t.Fatal("expected stale-data fault")
	}

	// Re-enable well past the stale window: the clock must restart, so the
	// very next sample is not instantly stale.
	resume := ms + 60000
	c.ClearError()
	c.Enable(at(resume))
	c.Update(35, at(resume+100))
	if c.InError() {
		t.Error("stale clock not restarted by Enable")
	}
}

func TestFaultPriorityNaNBeforeRange(t *testing.T) {
	c := newEnabled(t)
	c.SetSafeValueLimits(0, 100)
	c.EnableSafeValueLimits()

	// NaN is also outside any range; the NaN check wins.
	c.Update(math.NaN(), at(100))
	if c.LastFault() != FaultInvalidReading {
		t.Errorf("expected %s, got %s", FaultInvalidReading, c.LastFault())
	}
}
