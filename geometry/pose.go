// Package geometry defines the planar pose and twist types used for odometry and command
// discretization.
package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"swervebase/anglemath"
)

// Pose is a planar robot pose. X and Y are in meters in the field frame, Heading is radians
// counter-clockwise from the field +X axis, kept in (-π, π].
type Pose struct {
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	Heading float64 `json:"theta" yaml:"theta"`
}

// Twist is a displacement along an arc expressed in the frame of the pose it starts from.
type Twist struct {
	DX     float64
	DY     float64
	DTheta float64
}

// NewPose returns a pose with a normalized heading.
func NewPose(x, y, heading float64) Pose {
	return Pose{X: x, Y: y, Heading: anglemath.Normalize(heading)}
}

// Translation returns the position part of the pose.
func (p Pose) Translation() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// Rotate rotates v counter-clockwise by angle.
func Rotate(v r2.Point, angle float64) r2.Point {
	s, c := math.Sincos(angle)
	return r2.Point{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c}
}

// Exp composes t onto p, following the constant-curvature arc described by the twist. The arc is
// laid out in the frame of p, so the rotation into the field frame uses the heading at the start
// of the interval.
func (p Pose) Exp(t Twist) Pose {
	sinTheta, cosTheta := math.Sincos(t.DTheta)

	var s, c float64
	if math.Abs(t.DTheta) < 1e-9 {
		s = 1 - t.DTheta*t.DTheta/6
		c = 0.5 * t.DTheta
	} else {
		s = sinTheta / t.DTheta
		c = (1 - cosTheta) / t.DTheta
	}

	local := r2.Point{X: t.DX*s - t.DY*c, Y: t.DX*c + t.DY*s}
	moved := p.Translation().Add(Rotate(local, p.Heading))
	return NewPose(moved.X, moved.Y, p.Heading+t.DTheta)
}

// RelativeTo expresses p in the frame of origin.
func (p Pose) RelativeTo(origin Pose) Pose {
	delta := Rotate(p.Translation().Sub(origin.Translation()), -origin.Heading)
	return NewPose(delta.X, delta.Y, anglemath.ShortestDelta(p.Heading, origin.Heading))
}

// Log returns the twist that takes start to end along a single constant-curvature arc. It is the
// inverse of Exp: start.Exp(Log(start, end)) == end.
func Log(start, end Pose) Twist {
	rel := end.RelativeTo(start)
	dTheta := rel.Heading
	halfDTheta := dTheta / 2
	cosMinusOne := math.Cos(dTheta) - 1

	var halfThetaByTanOfHalfDTheta float64
	if math.Abs(cosMinusOne) < 1e-9 {
		halfThetaByTanOfHalfDTheta = 1 - dTheta*dTheta/12
	} else {
		halfThetaByTanOfHalfDTheta = -(halfDTheta * math.Sin(dTheta)) / cosMinusOne
	}

	// rotate by atan2(-halfDTheta, halfThetaByTan) and scale by the hypotenuse, as one complex product
	a, b := halfThetaByTanOfHalfDTheta, -halfDTheta
	return Twist{
		DX:     rel.X*a - rel.Y*b,
		DY:     rel.X*b + rel.Y*a,
		DTheta: dTheta,
	}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3frad)", p.X, p.Y, p.Heading)
}
