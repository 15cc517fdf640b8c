package sensor

// Plant is a first-order simulated thermal process for bench runs and
// integration tests. It warms toward Ambient plus a contribution
// proportional to the applied actuator duty, with time constant Tau.
//
//	dT/dt = (ambient + gain*duty/255 - T) / tau
//
// Plant implements Source; feed the actuator output back with Apply and
// advance time with Step. Single-threaded, like everything else in the loop.
type Plant struct {
	// Ambient is the resting process value with zero drive.
	Ambient float64
	// Gain is the steady-state rise above ambient at full (255) drive.
	Gain float64
	// Tau is the time constant in seconds.
	Tau float64

	value float64
	duty  float64
}

// NewPlant creates a plant resting at ambient.
func NewPlant(ambient, gain, tau float64) *Plant {
	return &Plant{
		Ambient: ambient,
		Gain:    gain,
		Tau:     tau,
		value:   ambient,
	}
}

// Apply sets the current actuator drive (0..255 duty scale).
func (p *Plant) Apply(duty float64) {
	p.duty = duty
}

// Step advances the simulation by dt seconds.
func (p *Plant) Step(dt float64) {
	if p.Tau <= 0 {
		return
	}
	target := p.Ambient + p.Gain*p.duty/255.0
	p.value += (target - p.value) * dt / p.Tau
}

// Read returns the current simulated process value.
func (p *Plant) Read() (float64, error) {
	return p.value, nil
}

// Close is a no-op.
func (p *Plant) Close() error {
	return nil
}

// SetValue forces the process value, for test setup.
func (p *Plant) SetValue(v float64) {
	p.value = v
}
