// Closed-loop tests: controller, simulated plant, tuner and publisher wired
// together the way the daemon wires them.
package internal_test

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/sweeney/pid-loop/internal/control"
	"github.com/sweeney/pid-loop/internal/mqtt"
	"github.com/sweeney/pid-loop/internal/sensor"
	"github.com/sweeney/pid-loop/internal/tune"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type loopPort struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (p *loopPort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *loopPort) Write(b []byte) (int, error) { return p.out.Write(b) }

// simLoop advances plant and controller together at a fixed 100ms step and
// returns the final process value.
func simLoop(ctrl *control.Controller, plant *sensor.Plant, from time.Time, seconds float64) (float64, time.Time) {
	const dt = 0.1
	t := from
	steps := int(seconds / dt)
	for i := 0; i < steps; i++ {
		t = t.Add(100 * time.Millisecond)
		plant.Step(dt)
		v, _ := plant.Read()
		ctrl.Update(v, t)
	}
	v, _ := plant.Read()
	return v, t
}

func TestClosedLoopConvergesToSetpoint(t *testing.T) {
	plant := sensor.NewPlant(20, 60, 30)
	ctrl := control.New(plant.Apply, false)
	ctrl.Begin(control.Gains{Kp: 20, Ki: 2, Kd: 0}, 40, base)

	v, _ := simLoop(ctrl, plant, base, 600)

	if math.Abs(v-40) > 1 {
		t.Errorf("process value settled at %.2f, want ~40", v)
	}
	if !ctrl.IsEnabled() || ctrl.InError() {
		t.Error("loop should still be healthy")
	}
}

func TestClosedLoopFaultAndRecovery(t *testing.T) {
	plant := sensor.NewPlant(20, 60, 30)
	ctrl := control.New(plant.Apply, false)
	ctrl.Begin(control.Gains{Kp: 20, Ki: 2, Kd: 0}, 40, base)

	_, now := simLoop(ctrl, plant, base, 300)

	// A corrupted reading surfaces as NaN and trips the interlock; the
	// drive drops to zero and the plant decays toward ambient.
	ctrl.Update(math.NaN(), now.Add(100*time.Millisecond))
	if !ctrl.InError() || ctrl.LastFault() != control.FaultInvalidReading {
		t.Fatalf("expected invalid-reading fault, got %s", ctrl.LastFault())
	}

	for i := 0; i < 600; i++ {
		plant.Step(0.1)
	}
	v, _ := plant.Read()
	if v > 25 {
		t.Errorf("undriven plant at %.2f, expected decay toward ambient", v)
	}

	// Operator recovery: clear the latched fault, then re-enable.
	now = now.Add(time.Minute)
	ctrl.ClearError()
	ctrl.Enable(now)
	v, _ = simLoop(ctrl, plant, now, 600)
	if math.Abs(v-40) > 1 {
		t.Errorf("recovered loop settled at %.2f, want ~40", v)
	}
}

func TestClosedLoopSetpointChangeViaTuner(t *testing.T) {
	plant := sensor.NewPlant(20, 60, 30)
	ctrl := control.New(plant.Apply, false)
	ctrl.Begin(control.Gains{Kp: 20, Ki: 2, Kd: 0}, 40, base)

	port := &loopPort{}
	var lastPV float64
	tn := tune.New(ctrl, func() (float64, error) { return lastPV, nil }, port)

	v, now := simLoop(ctrl, plant, base, 600)
	lastPV = v

	port.in.WriteString(`{"cmd":"set_sp","value":55}` + "\n")
	tn.Poll(now)
	if got := ctrl.Setpoint(); got != 55 {
		t.Fatalf("setpoint = %v, want 55", got)
	}

	v, _ = simLoop(ctrl, plant, now, 600)
	if math.Abs(v-55) > 1 {
		t.Errorf("process value settled at %.2f after retarget, want ~55", v)
	}
}

func TestClosedLoopStepTestRestoresSetpoint(t *testing.T) {
	plant := sensor.NewPlant(20, 60, 30)
	ctrl := control.New(plant.Apply, false)
	ctrl.Begin(control.Gains{Kp: 20, Ki: 2, Kd: 0}, 40, base)

	port := &loopPort{}
	tn := tune.New(ctrl, plant.Read, port)

	_, now := simLoop(ctrl, plant, base, 300)

	port.in.WriteString(`{"cmd":"step_test","amplitude":5}` + "\n")
	tn.Poll(now)
	if got := ctrl.Setpoint(); got != 45 {
		t.Fatalf("setpoint during step = %v, want 45", got)
	}

	// Walk the loop forward past the step window; the tuner restores the
	// original setpoint on its own.
	for i := 0; i < 60; i++ {
		now = now.Add(100 * time.Millisecond)
		plant.Step(0.1)
		v, _ := plant.Read()
		ctrl.Update(v, now)
		tn.Poll(now)
	}
	if tn.StepTestActive() {
		t.Error("step test should have expired")
	}
	if got := ctrl.Setpoint(); got != 40 {
		t.Errorf("setpoint after step = %v, want 40", got)
	}
}

func TestClosedLoopTelemetryMatchesController(t *testing.T) {
	plant := sensor.NewPlant(20, 60, 30)
	ctrl := control.New(plant.Apply, false)
	ctrl.Begin(control.Gains{Kp: 20, Ki: 2, Kd: 0}, 40, base)
	pub := mqtt.NewFakePublisher()

	v, now := simLoop(ctrl, plant, base, 600)

	err := pub.Publish(mqtt.Sample{
		Timestamp: now,
		PV:        v,
		Setpoint:  ctrl.Setpoint(),
		Output:    ctrl.Output(),
		Error:     ctrl.Error(),
		P:         ctrl.Proportional(),
		I:         ctrl.Integral(),
		D:         ctrl.Derivative(),
		Enabled:   ctrl.IsEnabled(),
	})
	if err != nil {
		t.Fatal(err)
	}

	s := pub.Samples[0]
	if math.Abs(s.PV-40) > 1 {
		t.Errorf("published pv = %.2f, want ~40", s.PV)
	}
	// Near steady state the output is carried by the integral term.
	if s.Output <= 0 || s.I <= 0 {
		t.Errorf("steady-state output %.2f / integral %.2f should be positive", s.Output, s.I)
	}
	if len(pub.Payloads) != 1 {
		t.Errorf("recorded %d payloads, want 1", len(pub.Payloads))
	}
}
