// Command pid-loop runs a PID control loop: it reads a process value from a
// sensor, drives a PWM actuator, enforces sensor-health interlocks, exposes
// a serial JSON tuning protocol and publishes telemetry to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/pid-loop/internal/actuator"
	"github.com/sweeney/pid-loop/internal/config"
	"github.com/sweeney/pid-loop/internal/control"
	"github.com/sweeney/pid-loop/internal/mqtt"
	"github.com/sweeney/pid-loop/internal/sensor"
	"github.com/sweeney/pid-loop/internal/status"
	"github.com/sweeney/pid-loop/internal/tune"
	"github.com/sweeney/pid-loop/internal/web"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config file (defaults apply when empty)")
	poll := flag.Duration("poll", 50*time.Millisecond, "control loop polling interval")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config; \"off\" disables)")
	serialPort := flag.String("serial", "", "tuning serial port (overrides config; \"off\" disables)")
	simulate := flag.Bool("simulate", false, "replace hardware with a simulated plant")
	printValue := flag.Bool("print-value", false, "print current process value and exit")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
	}
	applyOverrides(cfg, *broker, *httpAddr, *serialPort, *simulate)

	if err := run(cfg, *poll, *printValue); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyOverrides folds the flag overrides into the loaded config.
func applyOverrides(cfg *config.Config, broker, httpAddr, serialPort string, simulate bool) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	switch serialPort {
	case "":
	case "off":
		cfg.Serial.Port = ""
	default:
		cfg.Serial.Port = serialPort
	}
	if simulate {
		cfg.Sensor.Simulate = true
	}
}

func run(cfg *config.Config, poll time.Duration, printValue bool) error {
	// Process-value source and actuator. In simulate mode both ends of the
	// loop terminate in the same first-order plant.
	var (
		src   sensor.Source
		plant *sensor.Plant
		drv   actuator.Driver
	)
	if cfg.Sensor.Simulate {
		plant = sensor.NewPlant(cfg.Sensor.Ambient, cfg.Sensor.Gain, cfg.Sensor.TauSec)
		src = plant
	} else {
		switch {
		case cfg.Sensor.Path != "":
			src = sensor.NewDS18B20FromPath(cfg.Sensor.Path)
		case cfg.Sensor.Device != "":
			src = sensor.NewDS18B20(cfg.Sensor.Device)
		default:
			return fmt.Errorf("sensor: no device configured (set sensor.device or sensor.simulate)")
		}
	}
	defer src.Close()

	// Print value mode
	if printValue {
		v, err := src.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Printf("%.3f\n", v)
		return nil
	}

	if !cfg.Sensor.Simulate && !cfg.Actuator.Disabled {
		pwm, err := actuator.NewPWM(cfg.Actuator.Chip, cfg.Actuator.Pin, time.Duration(cfg.Actuator.PeriodMs)*time.Millisecond)
		if err != nil {
			return fmt.Errorf("init actuator: %w", err)
		}
		drv = pwm
		defer pwm.Close()
	}

	ctrl := buildController(cfg, drv, plant)

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:       poll.Milliseconds(),
		SampleTimeMs: cfg.Controller.SampleTimeMs,
		TelemetryMs:  cfg.MQTT.TelemetryMs,
		HeartbeatMs:  cfg.MQTT.HeartbeatMs,
		Broker:       cfg.MQTT.Broker,
		SerialPort:   cfg.Serial.Port,
		HTTPPort:     cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	// Open tuning port
	var tunePort io.ReadWriter
	if cfg.Serial.Port != "" {
		port, err := tune.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			// A missing tuning port must not keep the control loop down.
			log.Printf("tuning port unavailable: %v", err)
		} else {
			tunePort = port
			defer port.Close()
			log.Printf("tuning interface on %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud)
		}
	}

	log.Printf("started: poll=%v sample=%dms setpoint=%.2f broker=%s",
		poll, cfg.Controller.SampleTimeMs, cfg.Controller.Setpoint, cfg.MQTT.Broker)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	timing := loopTiming{
		poll:      poll,
		telemetry: time.Duration(cfg.MQTT.TelemetryMs) * time.Millisecond,
		heartbeat: time.Duration(cfg.MQTT.HeartbeatMs) * time.Millisecond,
	}
	return runLoop(ctrl, src, plant, tunePort, publisher, publisher, tracker, timing, time.Now, ticker.C, sigCh)
}

// buildController wires the config into a started controller. With a
// simulated plant the drive closure feeds the plant instead of hardware.
func buildController(cfg *config.Config, drv actuator.Driver, plant *sensor.Plant) *control.Controller {
	var drive func(float64)
	switch {
	case plant != nil:
		drive = plant.Apply
	case drv != nil:
		drive = func(v float64) {
			if err := drv.Write(v); err != nil {
				log.Printf("actuator write error: %v", err)
			}
		}
	}

	ctrl := control.New(drive, cfg.Controller.Reverse)
	ctrl.SetOutputLimits(cfg.Controller.OutputMin, cfg.Controller.OutputMax)
	ctrl.SetIntegralLimits(cfg.Controller.IntegralMin, cfg.Controller.IntegralMax)
	ctrl.SetSampleTime(time.Duration(cfg.Controller.SampleTimeMs) * time.Millisecond)

	now := time.Now()
	if sd := cfg.Safety.StaleData; sd.Enabled {
		ctrl.SetStaleDataDetection(sd.MinRate, time.Duration(sd.MaxTimeMs)*time.Millisecond)
		ctrl.EnableStaleDataDetection(now)
	}
	if sl := cfg.Safety.SafeLimits; sl.Enabled {
		ctrl.SetSafeValueLimits(sl.Min, sl.Max)
		ctrl.EnableSafeValueLimits()
	}

	g := control.Gains{Kp: cfg.Controller.Kp, Ki: cfg.Controller.Ki, Kd: cfg.Controller.Kd}
	ctrl.Begin(g, cfg.Controller.Setpoint, now)
	return ctrl
}

// loopTiming groups the runLoop cadences.
type loopTiming struct {
	poll      time.Duration
	telemetry time.Duration // 0 disables telemetry samples
	heartbeat time.Duration // 0 disables heartbeats
}

func runLoop(ctrl *control.Controller, src sensor.Source, plant *sensor.Plant, tunePort io.ReadWriter, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, timing loopTiming, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()

	var (
		counts        status.Counters
		lastPV        float64
		lastTelemetry = startTime
		lastHeartbeat = startTime
	)

	// The tuner's sensor capability reuses the loop's latest reading so a
	// slow sensor is only read once per tick.
	var tuner *tune.Tuner
	if tunePort != nil {
		tuner = tune.New(ctrl, func() (float64, error) { return lastPV, nil }, tunePort)
		tuner.Hello()
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			ctrl.Disable()
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			counts.Ticks++

			if plant != nil {
				plant.Step(timing.poll.Seconds())
			}

			v, err := src.Read()
			if err != nil {
				// Transient I/O failure: skip this tick. A corrupted reading
				// (CRC failure) arrives as NaN and trips the interlock instead.
				log.Printf("sensor read error: %v", err)
				counts.SensorErrors++
			} else {
				lastPV = v
				wasInError := ctrl.InError()
				ctrl.Update(v, t)
				if ctrl.InError() && !wasInError {
					counts.Faults++
					log.Printf("fault: %s (pv=%.3f), controller disabled", ctrl.LastFault(), v)
					publishFault(publisher, mqttStatus, tracker, ctrl, lastPV, counts, t)
				}
			}

			if tuner != nil {
				tuner.Poll(t)
				counts.Commands = tuner.CommandCount()
			}

			if timing.telemetry > 0 && t.Sub(lastTelemetry) >= timing.telemetry {
				lastTelemetry = t
				if err := publisher.Publish(sampleFrom(ctrl, lastPV, t)); err != nil {
					log.Printf("telemetry publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			if timing.heartbeat > 0 && t.Sub(lastHeartbeat) >= timing.heartbeat {
				lastHeartbeat = t
				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					if mqttStatus != nil {
						tracker.SetMQTTConnected(mqttStatus.IsConnected())
					}
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					tracker.Update(loopFrom(ctrl, lastPV), counts)
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				tracker.Update(loopFrom(ctrl, lastPV), counts)
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}
		}
	}
}

func publishFault(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, ctrl *control.Controller, pv float64, counts status.Counters, t time.Time) {
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "FAULT",
		Reason:    string(ctrl.LastFault()),
		Retained:  true,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		tracker.Update(loopFrom(ctrl, pv), counts)
		snap := tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "FAULT", string(ctrl.LastFault()))
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("fault publish error: %v", err)
	}
}

func sampleFrom(ctrl *control.Controller, pv float64, t time.Time) mqtt.Sample {
	return mqtt.Sample{
		Timestamp:  t,
		PV:         pv,
		Setpoint:   ctrl.Setpoint(),
		Output:     ctrl.Output(),
		Error:      ctrl.Error(),
		P:          ctrl.Proportional(),
		I:          ctrl.Integral(),
		D:          ctrl.Derivative(),
		Enabled:    ctrl.IsEnabled(),
		ErrorState: ctrl.InError(),
		Fault:      string(ctrl.LastFault()),
	}
}

func loopFrom(ctrl *control.Controller, pv float64) status.Loop {
	return status.Loop{
		Enabled:    ctrl.IsEnabled(),
		ErrorState: ctrl.InError(),
		Fault:      string(ctrl.LastFault()),
		PV:         pv,
		Setpoint:   ctrl.Setpoint(),
		Output:     ctrl.Output(),
		P:          ctrl.Proportional(),
		I:          ctrl.Integral(),
		D:          ctrl.Derivative(),
		Kp:         ctrl.Kp(),
		Ki:         ctrl.Ki(),
		Kd:         ctrl.Kd(),
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
