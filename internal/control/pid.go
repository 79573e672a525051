package control

// Gains configures one PID axis. IntegralLimit bounds the accumulated
// error state symmetrically; OutputLimit bounds the output symmetrically.
// A zero limit disables the corresponding clamp.
type Gains struct {
	KP float64 `yaml:"kp"`
	KI float64 `yaml:"ki"`
	KD float64 `yaml:"kd"`

	IntegralLimit float64 `yaml:"integral_limit"`
	OutputLimit   float64 `yaml:"output_limit"`
}

// PID is a single-axis controller. The derivative term is fed from a
// measured rate rather than a finite-differenced error, so a setpoint jump
// (new waypoint) cannot spike the output.
//
// Not safe for concurrent use.
type PID struct {
	g        Gains
	integral float64
}

func NewPID(g Gains) *PID {
	return &PID{g: g}
}

func (p *PID) Reset() {
	p.integral = 0
}

// Integral exposes the accumulator for inspection; it is always within the
// configured clamp.
func (p *PID) Integral() float64 { return p.integral }

// Update advances the integral state by err*dt and returns the control
// output for the given error and measured error rate. A non-positive dt
// leaves the state untouched and returns 0 to keep replays deterministic.
func (p *PID) Update(err, errRate, dt float64) float64 {
	if dt <= 0 {
		return 0
	}

	p.integral += err * dt
	if lim := p.g.IntegralLimit; lim > 0 {
		p.integral = clamp(p.integral, -lim, lim)
	}

	out := p.g.KP*err + p.g.KI*p.integral + p.g.KD*errRate
	if lim := p.g.OutputLimit; lim > 0 {
		out = clamp(out, -lim, lim)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
