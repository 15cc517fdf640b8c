// Package status provides a thread-safe status tracker for the pid-loop
// daemon. It is designed to be read by HTTP handlers while the control loop
// writes it once per tick.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs       int64
	SampleTimeMs int64
	TelemetryMs  int64
	HeartbeatMs  int64
	Broker       string
	SerialPort   string
	HTTPPort     string
}

// Counters accumulates loop statistics since startup.
type Counters struct {
	Ticks        int // control loop iterations
	Faults       int // error-state entries
	SensorErrors int // failed sensor reads (skipped ticks)
	Commands     int // serial tuning commands processed
}

// Loop is the control-loop view stored in a snapshot: the controller's
// getters plus the tuning gains, copied as plain values.
type Loop struct {
	Enabled    bool
	ErrorState bool
	Fault      string
	PV         float64
	Setpoint   float64
	Output     float64
	P          float64
	I          float64
	D          float64
	Kp         float64
	Ki         float64
	Kd         float64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Loop          Loop
	Counts        Counters
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the control-loop view and counters.
// Called from runLoop on every tick.
func (t *Tracker) Update(loop Loop, counts Counters) {
	t.mu.Lock()
	t.snap.Loop = loop
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
