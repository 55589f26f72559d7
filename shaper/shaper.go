// Package shaper limits how fast driver commands may change.
package shaper

import (
	"math"
)

// RateLimiter moves its output toward a target by at most rate*period per call.
type RateLimiter struct {
	rate   float64
	period float64
	last   float64
}

// NewRateLimiter returns a limiter whose output starts at initial. rate is in units per second
// and period is the call interval in seconds.
func NewRateLimiter(rate, period, initial float64) *RateLimiter {
	return &RateLimiter{rate: math.Abs(rate), period: period, last: initial}
}

// Apply returns the next output for target.
func (l *RateLimiter) Apply(target float64) float64 {
	step := l.rate * l.period
	delta := target - l.last
	switch {
	case delta > step:
		l.last += step
	case delta < -step:
		l.last -= step
	default:
		l.last = target
	}
	return l.last
}

// Reset sets the output baseline without limiting.
func (l *RateLimiter) Reset(value float64) {
	l.last = value
}

// Last returns the most recent output.
func (l *RateLimiter) Last() float64 {
	return l.last
}

// Rate returns the limit in units per second.
func (l *RateLimiter) Rate() float64 {
	return l.rate
}

// Shaper scales and rate limits a (vx, vy, omega) command. Translation axes share one rate and
// rotation has its own.
type Shaper struct {
	x, y, rot     *RateLimiter
	period        float64
	scale         float64
	fieldRelative bool
}

// New returns a shaper at rest with a scale factor of 1.
func New(translationRate, rotationRate, period float64, fieldRelative bool) *Shaper {
	return &Shaper{
		x:             NewRateLimiter(translationRate, period, 0),
		y:             NewRateLimiter(translationRate, period, 0),
		rot:           NewRateLimiter(rotationRate, period, 0),
		period:        period,
		scale:         1,
		fieldRelative: fieldRelative,
	}
}

// Apply scales the raw command by the current scale factor and rate limits each axis.
func (s *Shaper) Apply(vx, vy, omega float64) (float64, float64, float64) {
	return s.x.Apply(vx * s.scale), s.y.Apply(vy * s.scale), s.rot.Apply(omega * s.scale)
}

// SetFieldRelative records the command frame and reports whether it changed. The limiters keep
// their outputs across a change, so the next command ramps from the current shaped speed.
func (s *Shaper) SetFieldRelative(fieldRelative bool) bool {
	if fieldRelative == s.fieldRelative {
		return false
	}
	s.fieldRelative = fieldRelative
	return true
}

// FieldRelative reports the current command frame.
func (s *Shaper) FieldRelative() bool {
	return s.fieldRelative
}

// SetScale sets the factor applied to raw commands before limiting.
func (s *Shaper) SetScale(factor float64) {
	s.scale = factor
}

// Scale returns the current scale factor.
func (s *Shaper) Scale() float64 {
	return s.scale
}

// ChangeRates replaces all three limiters, keeping the latest outputs as their baselines.
func (s *Shaper) ChangeRates(translationRate, rotationRate float64) {
	s.x = NewRateLimiter(translationRate, s.period, s.x.Last())
	s.y = NewRateLimiter(translationRate, s.period, s.y.Last())
	s.rot = NewRateLimiter(rotationRate, s.period, s.rot.Last())
}

// Rates returns the translation and rotation limits.
func (s *Shaper) Rates() (float64, float64) {
	return s.x.Rate(), s.rot.Rate()
}

// Outputs returns the latest shaped command.
func (s *Shaper) Outputs() (float64, float64, float64) {
	return s.x.Last(), s.y.Last(), s.rot.Last()
}

// Reset brings every axis to rest immediately.
func (s *Shaper) Reset() {
	s.x.Reset(0)
	s.y.Reset(0)
	s.rot.Reset(0)
}
