package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Loop          LoopJSON     `json:"loop"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counters"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LoopJSON is the JSON representation of the control-loop state.
type LoopJSON struct {
	Enabled    bool    `json:"enabled"`
	ErrorState bool    `json:"error_state"`
	Fault      string  `json:"fault,omitempty"`
	PV         float64 `json:"pv"`
	SP         float64 `json:"sp"`
	Output     float64 `json:"output"`
	P          float64 `json:"p"`
	I          float64 `json:"i"`
	D          float64 `json:"d"`
	Kp         float64 `json:"kp"`
	Ki         float64 `json:"ki"`
	Kd         float64 `json:"kd"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the loop counters.
type CountsJSON struct {
	Ticks        int `json:"ticks"`
	Faults       int `json:"faults"`
	SensorErrors int `json:"sensor_errors"`
	Commands     int `json:"commands"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	SampleTimeMs int64  `json:"sample_time_ms"`
	TelemetryMs  int64  `json:"telemetry_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	SerialPort   string `json:"serial_port,omitempty"`
	HTTPPort     string `json:"http_port"`
}

// noNaN zeroes non-finite values: encoding/json rejects them, and a NaN
// process value is exactly what a corrupted sensor reading produces. The
// fault fields carry the real story.
func noNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Loop: LoopJSON{
			Enabled:    snap.Loop.Enabled,
			ErrorState: snap.Loop.ErrorState,
			Fault:      snap.Loop.Fault,
			PV:         noNaN(snap.Loop.PV),
			SP:         noNaN(snap.Loop.Setpoint),
			Output:     noNaN(snap.Loop.Output),
			P:          noNaN(snap.Loop.P),
			I:          noNaN(snap.Loop.I),
			D:          noNaN(snap.Loop.D),
			Kp:         noNaN(snap.Loop.Kp),
			Ki:         noNaN(snap.Loop.Ki),
			Kd:         noNaN(snap.Loop.Kd),
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Ticks:        snap.Counts.Ticks,
			Faults:       snap.Counts.Faults,
			SensorErrors: snap.Counts.SensorErrors,
			Commands:     snap.Counts.Commands,
		},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			SampleTimeMs: snap.Config.SampleTimeMs,
			TelemetryMs:  snap.Config.TelemetryMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			SerialPort:   snap.Config.SerialPort,
			HTTPPort:     snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
