package tune

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// serialReadTimeout bounds one Poll's read so the control loop keeps its
// cadence even when the app stops sending.
const serialReadTimeout = 10 * time.Millisecond

// OpenSerial opens the tuning port with a short read timeout so Poll never
// stalls the control loop.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return p, nil
}
