package sensor

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// DS18B20 reads a 1-Wire temperature probe via the Linux w1-gpio sysfs
// interface. The kernel exposes each probe as
// /sys/bus/w1/devices/<id>/w1_slave.
type DS18B20 struct {
	path string
}

// NewDS18B20 creates a reader for the probe with the given device ID
// (e.g. "28-0316a2798bff").
func NewDS18B20(deviceID string) *DS18B20 {
	return &DS18B20{
		path: "/sys/bus/w1/devices/" + deviceID + "/w1_slave",
	}
}

// NewDS18B20FromPath creates a reader for an explicit w1_slave file path.
// Useful for tests and non-standard sysfs mounts.
func NewDS18B20FromPath(path string) *DS18B20 {
	return &DS18B20{path: path}
}

// Read parses the w1_slave file and returns the temperature in °C.
// A failed CRC line yields NaN with no error: the controller's NaN interlock
// is the single place that decides what to do with a bad reading.
func (d *DS18B20) Read() (float64, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", d.path, err)
	}
	return parseW1Slave(string(data))
}

// Close is a no-op; sysfs files are opened per read.
func (d *DS18B20) Close() error {
	return nil
}

// parseW1Slave extracts the temperature from the two-line w1_slave format:
//
//	4b 01 4b 46 7f ff 0c 10 d8 : crc=d8 YES
//	4b 01 4b 46 7f ff 0c 10 d8 t=20687
func parseW1Slave(raw string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("w1_slave: unexpected format")
	}

	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		// CRC failure: report NaN so the safety interlock trips.
		return math.NaN(), nil
	}

	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, fmt.Errorf("w1_slave: missing t= field")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("w1_slave: parse t=: %w", err)
	}
	return float64(milli) / 1000.0, nil
}
