package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestExpStraightLine(t *testing.T) {
	start := NewPose(1, 2, math.Pi/2)
	end := start.Exp(Twist{DX: 0.5})
	test.That(t, end.X, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, end.Y, test.ShouldAlmostEqual, 2.5, 1e-12)
	test.That(t, end.Heading, test.ShouldAlmostEqual, math.Pi/2, 1e-12)
}

func TestExpQuarterArc(t *testing.T) {
	// a quarter circle of radius 1 driven forward while turning left
	end := Pose{}.Exp(Twist{DX: math.Pi / 2, DTheta: math.Pi / 2})
	test.That(t, end.X, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, end.Y, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, end.Heading, test.ShouldAlmostEqual, math.Pi/2, 1e-12)
}

func TestLogInvertsExp(t *testing.T) {
	starts := []Pose{{}, NewPose(3, -1, 2.5), NewPose(-0.4, 0.9, -3.0)}
	twists := []Twist{
		{DX: 1},
		{DX: 0.3, DY: -0.2, DTheta: 0.4},
		{DX: -0.7, DY: 0.1, DTheta: -2.9},
		{DTheta: 1e-12},
	}
	for _, start := range starts {
		for _, tw := range twists {
			got := Log(start, start.Exp(tw))
			test.That(t, got.DX, test.ShouldAlmostEqual, tw.DX, 1e-9)
			test.That(t, got.DY, test.ShouldAlmostEqual, tw.DY, 1e-9)
			test.That(t, got.DTheta, test.ShouldAlmostEqual, tw.DTheta, 1e-9)
		}
	}
}

func TestRelativeTo(t *testing.T) {
	origin := NewPose(1, 1, math.Pi/2)
	rel := NewPose(1, 3, math.Pi).RelativeTo(origin)
	test.That(t, rel.X, test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, rel.Y, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, rel.Heading, test.ShouldAlmostEqual, math.Pi/2, 1e-12)
}

func TestRotate(t *testing.T) {
	v := Rotate(r2.Point{X: 1, Y: 0}, -math.Pi/2)
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, v.Y, test.ShouldAlmostEqual, -1, 1e-12)
}
