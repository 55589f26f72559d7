// Package anglemath contains the angle wrapping helpers shared by the steering, heading hold and
// odometry code. All angles are radians.
package anglemath

import (
	"math"

	"github.com/golang/geo/s1"
)

// WrapToRange maps angle into [low, high) by adding or subtracting whole multiples of the range
// width. The range must have positive width.
func WrapToRange(angle, low, high float64) float64 {
	width := high - low
	wrapped := math.Mod(angle-low, width)
	if wrapped < 0 {
		wrapped += width
	}
	// math.Mod can hand back width itself for tiny negative inputs.
	if wrapped >= width {
		wrapped -= width
	}
	return low + wrapped
}

// Normalize returns the angle equivalent to angle in (-π, π].
func Normalize(angle float64) float64 {
	return s1.Angle(angle).Normalized().Radians()
}

// ShortestDelta returns the signed rotation in (-π, π] that takes current onto target.
func ShortestDelta(target, current float64) float64 {
	return Normalize(target - current)
}

// NearestContinuous returns the angle that differs from target by a multiple of 2π and is closest
// to current. current may be a continuous accumulator that has wound past one revolution.
func NearestContinuous(target, current float64) float64 {
	return current + ShortestDelta(target, current)
}
