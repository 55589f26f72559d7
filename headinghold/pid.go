// Package headinghold keeps the robot pointed where the driver left it when no rotation is
// being commanded.
package headinghold

import (
	"math"

	"swervebase/anglemath"
)

// Gains are the heading PID gains. IntegralLimit bounds the accumulated error; zero disables
// the bound.
type Gains struct {
	KP            float64 `json:"kp" yaml:"kp"`
	KI            float64 `json:"ki" yaml:"ki"`
	KD            float64 `json:"kd" yaml:"kd"`
	IntegralLimit float64 `json:"integral_limit" yaml:"integral_limit"`
}

// PID is a PID controller on an angle. The error is always the shortest rotation from the
// measurement to the setpoint, in (-π, π].
type PID struct {
	gains     Gains
	integral  float64
	prevError float64
	hasPrev   bool
}

// NewPID returns a PID with cleared state.
func NewPID(gains Gains) *PID {
	return &PID{gains: gains}
}

// Calculate returns the control output for a heading measurement, a heading setpoint, and the
// time in seconds since the previous call. A non-positive dt skips the integral and derivative
// terms.
func (p *PID) Calculate(measurement, setpoint, dt float64) float64 {
	err := anglemath.ShortestDelta(setpoint, measurement)

	var derivative float64
	if dt > 0 {
		p.integral += err * dt
		if limit := math.Abs(p.gains.IntegralLimit); limit > 0 {
			p.integral = math.Max(-limit, math.Min(limit, p.integral))
		}
		if p.hasPrev {
			derivative = (err - p.prevError) / dt
		}
	}
	p.prevError = err
	p.hasPrev = true

	return p.gains.KP*err + p.gains.KI*p.integral + p.gains.KD*derivative
}

// Reset clears the accumulated state.
func (p *PID) Reset() {
	p.integral = 0
	p.prevError = 0
	p.hasPrev = false
}
