// Package tune bridges a line-delimited JSON byte stream to the controller's
// setters and getters. The controller core never sees the wire format; the
// tuner never runs concurrently with the control loop — both are polled from
// the same goroutine.
package tune

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/sweeney/pid-loop/internal/control"
)

const (
	// DataSendInterval is the outbound telemetry cadence (10 Hz).
	DataSendInterval = 100 * time.Millisecond

	// StepTestDuration is how long a step test holds the bumped setpoint
	// before restoring the original.
	StepTestDuration = 5000 * time.Millisecond

	// maxLineLen caps one inbound command line; longer lines are truncated.
	maxLineLen = 256
)

// Tuner parses tuning commands from a byte stream and emits telemetry on
// the same stream. It mutates the controller only through its public
// setters.
type Tuner struct {
	ctrl *control.Controller
	read func() (float64, error)
	port io.ReadWriter

	running bool

	stepActive    bool
	stepAmplitude float64
	originalSP    float64
	stepStart     time.Time

	lastDataSend time.Time
	commands     int

	line []byte
	rbuf [256]byte
}

// New creates a Tuner over the given byte stream. read is the injected
// sensor capability used for telemetry samples.
func New(ctrl *control.Controller, read func() (float64, error), port io.ReadWriter) *Tuner {
	return &Tuner{
		ctrl: ctrl,
		read: read,
		port: port,
		line: make([]byte, 0, maxLineLen),
	}
}

// Hello announces the interface to a freshly connected tuning app.
func (t *Tuner) Hello() {
	t.sendStatus()
	t.send(DebugMsg{Type: "debug", Debug: "tuning interface ready"})
}

// Running reports whether a start command is in effect.
func (t *Tuner) Running() bool {
	return t.running
}

// StepTestActive reports whether a step test is in progress.
func (t *Tuner) StepTestActive() bool {
	return t.stepActive
}

// CommandCount returns the number of command lines processed since startup.
func (t *Tuner) CommandCount() int {
	return t.commands
}

// Poll performs one cooperative slice of work: drain available inbound
// bytes, execute complete commands, emit telemetry at the fixed cadence,
// and expire a finished step test. Poll never blocks beyond the port's own
// read timeout.
func (t *Tuner) Poll(now time.Time) {
	t.drainInput(now)

	if now.Sub(t.lastDataSend) >= DataSendInterval {
		t.sendData(now)
		t.lastDataSend = now
	}

	if t.stepActive && now.Sub(t.stepStart) >= StepTestDuration {
		t.stopStepTest()
	}
}

// drainInput reads whatever the port has buffered and processes any
// complete lines.
func (t *Tuner) drainInput(now time.Time) {
	for {
		n, err := t.port.Read(t.rbuf[:])
		if n > 0 {
			t.consume(t.rbuf[:n], now)
		}
		if err != nil || n == 0 {
			// io.EOF / timeout: nothing more buffered right now.
			return
		}
	}
}

func (t *Tuner) consume(data []byte, now time.Time) {
	for _, c := range data {
		if c == '\n' || c == '\r' {
			if len(t.line) > 0 {
				t.processCommand(t.line, now)
				t.line = t.line[:0]
			}
			continue
		}
		if len(t.line) < maxLineLen-1 {
			t.line = append(t.line, c)
		}
	}
}

func (t *Tuner) processCommand(line []byte, now time.Time) {
	t.commands++
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		t.send(ErrorMsg{Error: "Invalid JSON"})
		return
	}

	switch cmd.Cmd {
	case "set_params":
		t.setParams(cmd)
	case "set_sp":
		if cmd.Value != nil {
			t.ctrl.SetSetpoint(*cmd.Value)
		}
	case "start":
		t.send(DebugMsg{Type: "debug", Debug: "Received start command"})
		t.start(now)
	case "stop":
		t.send(DebugMsg{Type: "debug", Debug: "Received stop command"})
		t.stop()
	case "get_status":
		t.sendStatus()
	case "step_test":
		if cmd.Amplitude != nil {
			t.startStepTest(*cmd.Amplitude, now)
		}
	case "clear_error":
		t.ctrl.ClearError()
		t.send(DebugMsg{Type: "debug", Debug: "Error state cleared"})
		t.sendStatus()
	default:
		t.send(ErrorMsg{Error: "Unknown command"})
	}
}

// setParams merges partial gain fields with the current values so the app
// can adjust a single coefficient.
func (t *Tuner) setParams(cmd Command) {
	g := control.Gains{Kp: t.ctrl.Kp(), Ki: t.ctrl.Ki(), Kd: t.ctrl.Kd()}
	if cmd.Kp != nil {
		g.Kp = *cmd.Kp
	}
	if cmd.Ki != nil {
		g.Ki = *cmd.Ki
	}
	if cmd.Kd != nil {
		g.Kd = *cmd.Kd
	}
	t.ctrl.SetGains(g)

	if cmd.LoopPeriod != nil {
		t.ctrl.SetSampleTime(time.Duration(*cmd.LoopPeriod) * time.Millisecond)
	}
	if cmd.OutputLimit != nil && *cmd.OutputLimit && cmd.OutputMin != nil && cmd.OutputMax != nil {
		t.ctrl.SetOutputLimits(*cmd.OutputMin, *cmd.OutputMax)
	}
	if cmd.IntegralLimit != nil && *cmd.IntegralLimit && cmd.IntegralMin != nil && cmd.IntegralMax != nil {
		t.ctrl.SetIntegralLimits(*cmd.IntegralMin, *cmd.IntegralMax)
	}
}

func (t *Tuner) start(now time.Time) {
	t.running = true
	t.ctrl.Enable(now)
	t.send(DebugMsg{Type: "debug", Debug: "Control started"})
	t.sendStatus()
}

func (t *Tuner) stop() {
	t.running = false
	t.ctrl.Disable()
	t.send(DebugMsg{Type: "debug", Debug: "Control stopped"})
	t.sendStatus()
}

func (t *Tuner) startStepTest(amplitude float64, now time.Time) {
	if t.stepActive {
		return
	}
	t.stepAmplitude = amplitude
	t.originalSP = t.ctrl.Setpoint()
	t.ctrl.SetSetpoint(t.originalSP + amplitude)
	t.stepActive = true
	t.stepStart = now
	t.send(StepTestStartedMsg{Type: "step_test_started", Amplitude: amplitude})
}

func (t *Tuner) stopStepTest() {
	if !t.stepActive {
		return
	}
	t.ctrl.SetSetpoint(t.originalSP)
	t.stepActive = false
	t.send(StepTestCompleteMsg{Type: "step_test_complete"})
}

func (t *Tuner) sendData(now time.Time) {
	// A missing or failed sensor reads as 0 here; NaN is not representable
	// in JSON and the controller's own interlock already handles bad data.
	pv := 0.0
	if t.read != nil {
		if v, err := t.read(); err == nil && !math.IsNaN(v) {
			pv = v
		}
	}
	sp := t.ctrl.Setpoint()
	t.send(DataMsg{
		Type:   "data",
		PV:     pv,
		SP:     sp,
		Output: t.ctrl.Output(),
		Error:  sp - pv,
		P:      t.ctrl.Proportional(),
		I:      t.ctrl.Integral(),
		D:      t.ctrl.Derivative(),
		Time:   now.UnixMilli(),
	})
}

func (t *Tuner) sendStatus() {
	t.send(StatusMsg{
		Type:       "status",
		Running:    t.running,
		Kp:         t.ctrl.Kp(),
		Ki:         t.ctrl.Ki(),
		Kd:         t.ctrl.Kd(),
		SP:         t.ctrl.Setpoint(),
		LoopPeriod: t.ctrl.SampleTime().Milliseconds(),
		ErrorState: t.ctrl.InError(),
	})
}

// send marshals and writes one line. Write failures are swallowed: a gone
// tuning app must not disturb the control loop.
func (t *Tuner) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	t.port.Write(append(data, '\n'))
}
