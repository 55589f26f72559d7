// Package kinematics maps between chassis velocities and the states of independently steered
// wheel modules.
package kinematics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"swervebase/anglemath"
	"swervebase/geometry"
)

// ChassisSpeeds is a planar velocity. VX is forward, VY is to the left (m/s), Omega is
// counter-clockwise (rad/s). Whether it is robot- or field-relative depends on the caller.
type ChassisSpeeds struct {
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Omega float64 `json:"omega"`
}

// ModuleState is a wheel speed (m/s, signed) and steering angle (radians, any range).
type ModuleState struct {
	Speed float64 `json:"speed"`
	Angle float64 `json:"angle"`
}

// ModulePosition is the accumulated drive distance of a wheel (m) and its steering angle.
type ModulePosition struct {
	Distance float64 `json:"distance"`
	Angle    float64 `json:"angle"`
}

// ChassisAccel is the finite difference of two chassis speeds.
type ChassisAccel struct {
	AX    float64 `json:"ax"`
	AY    float64 `json:"ay"`
	Alpha float64 `json:"alpha"`
}

// Translation returns the linear part of the speeds.
func (s ChassisSpeeds) Translation() r2.Point {
	return r2.Point{X: s.VX, Y: s.VY}
}

// IsZero reports whether every component is exactly zero.
func (s ChassisSpeeds) IsZero() bool {
	return s.VX == 0 && s.VY == 0 && s.Omega == 0
}

func (s ChassisSpeeds) String() string {
	return fmt.Sprintf("vx=%.3f vy=%.3f omega=%.3f", s.VX, s.VY, s.Omega)
}

// Vector returns the wheel velocity as a planar vector.
func (m ModuleState) Vector() r2.Point {
	s, c := math.Sincos(m.Angle)
	return r2.Point{X: m.Speed * c, Y: m.Speed * s}
}

// NewChassisAccel computes the acceleration between two speeds measured dt seconds apart.
func NewChassisAccel(current, previous ChassisSpeeds, dt float64) ChassisAccel {
	if dt <= 0 {
		return ChassisAccel{}
	}
	return ChassisAccel{
		AX:    (current.VX - previous.VX) / dt,
		AY:    (current.VY - previous.VY) / dt,
		Alpha: (current.Omega - previous.Omega) / dt,
	}
}

// FromFieldRelative converts field-relative speeds into the robot frame given the robot heading.
func FromFieldRelative(speeds ChassisSpeeds, heading float64) ChassisSpeeds {
	v := geometry.Rotate(speeds.Translation(), -heading)
	return ChassisSpeeds{VX: v.X, VY: v.Y, Omega: speeds.Omega}
}

// Desaturate scales every state's speed by the same ratio so that none exceeds maxSpeed. The
// states are left untouched when they are already within the limit.
func Desaturate(states []ModuleState, maxSpeed float64) {
	realMax := 0.0
	for _, s := range states {
		realMax = math.Max(realMax, math.Abs(s.Speed))
	}
	if realMax <= maxSpeed || realMax == 0 {
		return
	}
	ratio := maxSpeed / realMax
	for i := range states {
		states[i].Speed *= ratio
	}
}

// SecondOrderCorrection skews the translation against the direction of rotation. Translating and
// rotating at once inside one control period drags the chassis sideways; coefficient is the
// empirical gain tying that drift to the loop period and wheelbase.
func SecondOrderCorrection(speeds ChassisSpeeds, coefficient float64) ChassisSpeeds {
	t := speeds.Translation()
	adj := geometry.Rotate(t, -math.Pi/2).Mul(speeds.Omega * coefficient)
	t = t.Add(adj)
	return ChassisSpeeds{VX: t.X, VY: t.Y, Omega: speeds.Omega}
}

// Discretize returns the constant speeds that, held for dt seconds, land on the pose reached by
// following speeds for dt along a straight line while rotating.
func Discretize(speeds ChassisSpeeds, dt float64) ChassisSpeeds {
	if dt <= 0 {
		return speeds
	}
	target := geometry.Pose{X: speeds.VX * dt, Y: speeds.VY * dt, Heading: anglemath.Normalize(speeds.Omega * dt)}
	twist := geometry.Log(geometry.Pose{}, target)
	return ChassisSpeeds{VX: twist.DX / dt, VY: twist.DY / dt, Omega: twist.DTheta / dt}
}
