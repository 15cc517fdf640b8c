// Package sensor provides process-value sources with hardware abstraction.
// The real implementation reads a DS18B20 1-Wire probe through sysfs.
// The fake and the simulated plant allow testing without hardware.
package sensor

// Source reads the current process value.
type Source interface {
	// Read returns the latest process value (e.g. temperature in °C).
	Read() (float64, error)

	// Close releases sensor resources.
	Close() error
}
