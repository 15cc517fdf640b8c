// Package config loads the pid-loop daemon configuration from a YAML file.
// Absent keys keep their defaults, so a minimal file only names the gains
// and the hardware bindings.
package config

import (
	"fmt"
	"os"

	"github.com/sweeney/pid-loop/internal/actuator"
	"github.com/sweeney/pid-loop/internal/control"
	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Safety     SafetyConfig     `yaml:"safety"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Actuator   ActuatorConfig   `yaml:"actuator"`
	Serial     SerialConfig     `yaml:"serial"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// ControllerConfig holds the PID tuning and limits.
type ControllerConfig struct {
	Kp           float64 `yaml:"kp"`
	Ki           float64 `yaml:"ki"`
	Kd           float64 `yaml:"kd"`
	Setpoint     float64 `yaml:"setpoint"`
	SampleTimeMs int64   `yaml:"sample_time_ms"`
	Reverse      bool    `yaml:"reverse"`
	OutputMin    float64 `yaml:"output_min"`
	OutputMax    float64 `yaml:"output_max"`
	IntegralMin  float64 `yaml:"integral_min"`
	IntegralMax  float64 `yaml:"integral_max"`
}

// SafetyConfig holds the sensor-health interlocks.
type SafetyConfig struct {
	StaleData  StaleDataConfig  `yaml:"stale_data"`
	SafeLimits SafeLimitsConfig `yaml:"safe_limits"`
}

// StaleDataConfig configures the stuck-sensor interlock.
type StaleDataConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinRate   float64 `yaml:"min_rate"` // units per second
	MaxTimeMs int64   `yaml:"max_time_ms"`
}

// SafeLimitsConfig configures the plausible-value range interlock.
type SafeLimitsConfig struct {
	Enabled bool    `yaml:"enabled"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// SensorConfig selects the process-value source.
type SensorConfig struct {
	// Device is the 1-Wire device ID (e.g. "28-0316a2798bff").
	Device string `yaml:"device"`
	// Path overrides Device with an explicit w1_slave file path.
	Path string `yaml:"path"`
	// Simulate replaces the hardware sensor with a first-order plant.
	Simulate bool    `yaml:"simulate"`
	Ambient  float64 `yaml:"ambient"`
	Gain     float64 `yaml:"gain"`
	TauSec   float64 `yaml:"tau_sec"`
}

// ActuatorConfig selects the PWM output pin.
type ActuatorConfig struct {
	Chip     string `yaml:"chip"`
	Pin      int    `yaml:"pin"`
	PeriodMs int64  `yaml:"period_ms"`
	// Disabled runs the loop without an actuator binding.
	Disabled bool `yaml:"disabled"`
}

// SerialConfig selects the tuning port. An empty port disables the tuner.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MQTTConfig configures the telemetry sink.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TelemetryMs int64  `yaml:"telemetry_ms"` // 0 disables telemetry samples
	HeartbeatMs int64  `yaml:"heartbeat_ms"` // 0 disables heartbeats
}

// HTTPConfig configures the status server. An empty addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Controller: ControllerConfig{
			Kp:           2.0,
			Ki:           0.5,
			Kd:           1.0,
			Setpoint:     25.0,
			SampleTimeMs: control.DefaultSampleTime.Milliseconds(),
			OutputMin:    control.DefaultOutputMin,
			OutputMax:    control.DefaultOutputMax,
			IntegralMin:  control.DefaultIntegralMin,
			IntegralMax:  control.DefaultIntegralMax,
		},
		Safety: SafetyConfig{
			StaleData:  StaleDataConfig{MinRate: 0.1, MaxTimeMs: 5000},
			SafeLimits: SafeLimitsConfig{Min: 0, Max: 100},
		},
		Sensor: SensorConfig{
			Ambient: 20.0,
			Gain:    60.0,
			TauSec:  30.0,
		},
		Actuator: ActuatorConfig{
			Chip:     actuator.DefaultChip,
			Pin:      actuator.DefaultPin,
			PeriodMs: actuator.DefaultPWMPeriod.Milliseconds(),
		},
		Serial: SerialConfig{
			Port: "/dev/ttyAMA0",
			Baud: 115200,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://192.168.1.200:1883",
			TelemetryMs: 1000,
			HeartbeatMs: 15 * 60 * 1000,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
