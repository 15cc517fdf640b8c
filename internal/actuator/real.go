//go:build linux

package actuator

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// PWM drives a GPIO line with software PWM. The control loop only stores
// the requested duty; a background goroutine does the actual switching, so
// Write never blocks and is safe to call from the single control thread.
type PWM struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	period time.Duration

	// duty holds the current level, 0..FullScale, stored atomically so the
	// flipper goroutine can read it without a lock.
	duty atomic.Int64

	stop chan struct{}
	done chan struct{}
}

// NewPWM opens the given chip and pin and starts the PWM goroutine with the
// output held low.
func NewPWM(chipName string, pin int, period time.Duration) (*PWM, error) {
	if period <= 0 {
		period = DefaultPWMPeriod
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	p := &PWM{
		chip:   chip,
		line:   line,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Write stores the new duty level for the flipper goroutine to pick up on
// its next cycle.
func (p *PWM) Write(value float64) error {
	if value < 0 {
		value = 0
	} else if value > FullScale {
		value = FullScale
	}
	p.duty.Store(int64(value))
	return nil
}

// run flips the line for onTime out of every period. Fully-off and fully-on
// duties skip the mid-cycle sleep.
func (p *PWM) run() {
	defer close(p.done)
	timer := time.NewTimer(p.period)
	defer timer.Stop()

	for {
		duty := p.duty.Load()
		onTime := p.period * time.Duration(duty) / time.Duration(FullScale)

		if onTime > 0 {
			p.line.SetValue(1)
		}
		if onTime < p.period {
			if onTime > 0 {
				if !p.sleep(timer, onTime) {
					return
				}
			}
			p.line.SetValue(0)
			if !p.sleep(timer, p.period-onTime) {
				return
			}
		} else {
			if !p.sleep(timer, p.period) {
				return
			}
		}
	}
}

// sleep waits for d or until Close. Returns false when stopping.
func (p *PWM) sleep(timer *time.Timer, d time.Duration) bool {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
	select {
	case <-p.stop:
		return false
	case <-timer.C:
		return true
	}
}

// Close stops the PWM goroutine and leaves the pin driven low.
// The line stays an output so an external pull cannot re-energize the load
// between daemon restarts.
func (p *PWM) Close() error {
	close(p.stop)
	<-p.done

	var errs []error
	if err := p.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive pin low: %w", err))
	}
	if err := p.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin: %w", err))
	}
	if err := p.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
