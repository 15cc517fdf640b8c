// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"
)

// TopicTelemetry is the MQTT topic for periodic control-loop samples.
const TopicTelemetry = "energy/pid/loop/telemetry"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/pid/loop/system"

// Sample is one control-loop telemetry reading, fed from the controller's
// getters.
type Sample struct {
	Timestamp  time.Time
	PV         float64
	Setpoint   float64
	Output     float64
	Error      float64
	P          float64
	I          float64
	D          float64
	Enabled    bool
	ErrorState bool
	Fault      string
}

// Publisher publishes control-loop data to MQTT.
type Publisher interface {
	// Publish sends a telemetry sample to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(s Sample) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event
// (e.g. startup, shutdown, heartbeat, fault).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "SHUTDOWN", "HEARTBEAT", "FAULT"
	Reason     string // e.g. "SIGTERM", or the fault kind for FAULT events
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the telemetry message payload structure.
type Payload struct {
	PID PIDPayload `json:"pid"`
}

// PIDPayload contains the control-loop sample details.
type PIDPayload struct {
	Timestamp  string  `json:"timestamp"`
	PV         float64 `json:"pv"`
	SP         float64 `json:"sp"`
	Output     float64 `json:"output"`
	Error      float64 `json:"error"`
	P          float64 `json:"p"`
	I          float64 `json:"i"`
	D          float64 `json:"d"`
	Enabled    bool    `json:"enabled"`
	ErrorState bool    `json:"error_state"`
	Fault      string  `json:"fault,omitempty"`
}

// FormatPayload creates the JSON payload for a telemetry sample.
// NaN and Inf are not representable in JSON and are emitted as 0; the fault
// fields carry the real story for a bad reading.
func FormatPayload(s Sample) ([]byte, error) {
	payload := Payload{
		PID: PIDPayload{
			Timestamp:  s.Timestamp.UTC().Format(time.RFC3339),
			PV:         noNaN(s.PV),
			SP:         noNaN(s.Setpoint),
			Output:     noNaN(s.Output),
			Error:      noNaN(s.Error),
			P:          noNaN(s.P),
			I:          noNaN(s.I),
			D:          noNaN(s.D),
			Enabled:    s.Enabled,
			ErrorState: s.ErrorState,
			Fault:      s.Fault,
		},
	}
	return json.Marshal(payload)
}

func noNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
