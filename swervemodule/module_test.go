package swervemodule

import (
	"math"
	"testing"

	"go.viam.com/test"
)

type fakeHardware struct {
	velocity, feedforward, steer float64
	stopped, brake               bool

	measuredVelocity, measuredPosition, measuredSteer float64
}

func (f *fakeHardware) SetDriveVelocity(velocity, feedforwardVolts float64) {
	f.velocity = velocity
	f.feedforward = feedforwardVolts
	f.stopped = false
}

func (f *fakeHardware) SetSteerPosition(position float64) { f.steer = position }
func (f *fakeHardware) Stop()                             { f.stopped = true }
func (f *fakeHardware) SetBrakeMode(brake bool)           { f.brake = brake }
func (f *fakeHardware) DriveVelocity() float64            { return f.measuredVelocity }
func (f *fakeHardware) DrivePosition() float64            { return f.measuredPosition }
func (f *fakeHardware) SteerAngle() float64               { return f.measuredSteer }

func TestModule(t *testing.T) {
	hw := &fakeHardware{measuredVelocity: 0.5, measuredPosition: 12.25, measuredSteer: -math.Pi / 2}
	m := NewModule("front_left", hw, hw)

	r := m.Read()
	test.That(t, r, test.ShouldResemble, Reading{DriveVelocity: 0.5, DrivePosition: 12.25, SteerAngle: -math.Pi / 2})
	test.That(t, r.State().Angle, test.ShouldAlmostEqual, 3*math.Pi/2, 1e-12)
	test.That(t, r.State().Speed, test.ShouldEqual, 0.5)
	test.That(t, r.Position().Distance, test.ShouldEqual, 12.25)

	m.Apply(Setpoints{DriveVelocity: 1, SteerPosition: 7, Feedforward: 2})
	test.That(t, hw.velocity, test.ShouldEqual, 1)
	test.That(t, hw.steer, test.ShouldEqual, 7)
	test.That(t, hw.feedforward, test.ShouldEqual, 2)

	m.SetBrakeMode(true)
	test.That(t, hw.brake, test.ShouldBeTrue)
	m.Stop()
	test.That(t, hw.stopped, test.ShouldBeTrue)
}
