package swervemodule

import (
	"math"
	"testing"

	"go.viam.com/test"

	"swervebase/anglemath"
	"swervebase/kinematics"
)

func TestOptimize(t *testing.T) {
	t.Run("small turn is kept", func(t *testing.T) {
		got := Optimize(kinematics.ModuleState{Speed: 2, Angle: 0.5}, 0)
		test.That(t, got.Speed, test.ShouldEqual, 2)
		test.That(t, got.Angle, test.ShouldAlmostEqual, 0.5, 1e-12)
	})

	t.Run("large turn flips", func(t *testing.T) {
		got := Optimize(kinematics.ModuleState{Speed: 2, Angle: math.Pi}, 0.1)
		test.That(t, got.Speed, test.ShouldEqual, -2)
		test.That(t, got.Angle, test.ShouldAlmostEqual, 0, 1e-12)
	})

	t.Run("continuous current angle", func(t *testing.T) {
		got := Optimize(kinematics.ModuleState{Speed: 1, Angle: -math.Pi / 2}, 6*math.Pi+math.Pi/2)
		test.That(t, got.Speed, test.ShouldEqual, -1)
		test.That(t, got.Angle, test.ShouldAlmostEqual, math.Pi/2, 1e-12)
	})

	t.Run("never steers more than a quarter turn and keeps the wheel vector", func(t *testing.T) {
		for desired := -7.0; desired < 7; desired += 0.13 {
			for current := -9.0; current < 9; current += 0.17 {
				in := kinematics.ModuleState{Speed: 1.3, Angle: desired}
				got := Optimize(in, current)
				test.That(t, math.Abs(anglemath.ShortestDelta(got.Angle, current)), test.ShouldBeLessThanOrEqualTo, math.Pi/2+1e-12)
				want := in.Vector()
				have := got.Vector()
				test.That(t, have.X, test.ShouldAlmostEqual, want.X, 1e-9)
				test.That(t, have.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
			}
		}
	})
}

func TestFeedforward(t *testing.T) {
	c := NewController(Gains{StaticGain: 0.02, VelocityGain: 0.2, VoltageCompensation: 12}, 1e-3)
	test.That(t, c.Feedforward(1), test.ShouldAlmostEqual, (0.02+0.2)*12, 1e-12)
	test.That(t, c.Feedforward(-2), test.ShouldAlmostEqual, (-0.02-0.4)*12, 1e-12)
	test.That(t, c.Feedforward(0), test.ShouldEqual, 0)
}

func TestComputeSetpoints(t *testing.T) {
	c := NewController(Gains{VelocityGain: 0.25, VoltageCompensation: 10}, 1e-3)

	t.Run("unwraps onto the continuous steer scale", func(t *testing.T) {
		measured := 4*math.Pi + 0.1
		sp := c.ComputeSetpoints(kinematics.ModuleState{Speed: 1, Angle: -0.1}, measured)
		test.That(t, sp.SteerPosition, test.ShouldAlmostEqual, 4*math.Pi-0.1, 1e-9)
		test.That(t, sp.DriveVelocity, test.ShouldEqual, 1)
		test.That(t, sp.Feedforward, test.ShouldAlmostEqual, 2.5, 1e-12)
	})

	t.Run("crossing zero from below", func(t *testing.T) {
		measured := -2*math.Pi - 0.05
		sp := c.ComputeSetpoints(kinematics.ModuleState{Speed: 1, Angle: 0.05}, measured)
		test.That(t, sp.SteerPosition, test.ShouldAlmostEqual, -2*math.Pi+0.05, 1e-9)
	})
}

func TestSetpoints(t *testing.T) {
	c := NewController(Gains{VelocityGain: 0.25, VoltageCompensation: 10}, 1e-3)

	t.Run("flips and unwraps", func(t *testing.T) {
		measured := 2*math.Pi + 0.2
		sp := c.Setpoints(kinematics.ModuleState{Speed: 1.5, Angle: math.Pi}, measured)
		test.That(t, sp.DriveVelocity, test.ShouldEqual, -1.5)
		test.That(t, sp.SteerPosition, test.ShouldAlmostEqual, 2*math.Pi, 1e-9)
		test.That(t, sp.Feedforward, test.ShouldAlmostEqual, -3.75, 1e-12)
	})

	t.Run("zero speed freezes the steer", func(t *testing.T) {
		sp := c.Setpoints(kinematics.ModuleState{Speed: 0, Angle: 2}, 0.7)
		test.That(t, sp.SteerPosition, test.ShouldEqual, 0.7)
		test.That(t, sp.DriveVelocity, test.ShouldEqual, 0)

		sp = c.Setpoints(kinematics.ModuleState{Speed: 5e-4, Angle: 2}, 0.7)
		test.That(t, sp.SteerPosition, test.ShouldEqual, 0.7)
	})
}
