// Package swervemodule turns a desired wheel state into drive and steer setpoints for one swerve
// module, and binds those setpoints to the motor hardware that carries them out.
package swervemodule

import (
	"math"

	"swervebase/anglemath"
	"swervebase/kinematics"
)

// Actuator drives the two motors of a module. Implementations must not block: the control loop
// calls these every cycle.
type Actuator interface {
	// SetDriveVelocity requests a closed-loop wheel velocity (m/s) with an additional feedforward
	// voltage.
	SetDriveVelocity(velocity, feedforwardVolts float64)
	// SetSteerPosition requests a continuous steer position (radians, may exceed one revolution).
	SetSteerPosition(position float64)
	Stop()
	SetBrakeMode(brake bool)
}

// Sensor reports the measured state of a module.
type Sensor interface {
	// DriveVelocity is the wheel surface speed in m/s.
	DriveVelocity() float64
	// DrivePosition is the accumulated wheel travel in meters.
	DrivePosition() float64
	// SteerAngle is the continuous steer encoder position in radians.
	SteerAngle() float64
}

// Reading is a snapshot of a module's sensors taken once per control cycle.
type Reading struct {
	DriveVelocity float64 `json:"drive_velocity"`
	DrivePosition float64 `json:"drive_position"`
	SteerAngle    float64 `json:"steer_angle"`
}

// State returns the measured wheel state with the steer angle wrapped into one revolution.
func (r Reading) State() kinematics.ModuleState {
	return kinematics.ModuleState{Speed: r.DriveVelocity, Angle: anglemath.WrapToRange(r.SteerAngle, 0, 2*math.Pi)}
}

// Position returns the measured drive distance and wrapped steer angle.
func (r Reading) Position() kinematics.ModulePosition {
	return kinematics.ModulePosition{Distance: r.DrivePosition, Angle: anglemath.WrapToRange(r.SteerAngle, 0, 2*math.Pi)}
}

// Module pairs the actuator and sensor of one physical module.
type Module struct {
	Name     string
	actuator Actuator
	sensor   Sensor
}

// NewModule returns a module bound to its hardware.
func NewModule(name string, actuator Actuator, sensor Sensor) *Module {
	return &Module{Name: name, actuator: actuator, sensor: sensor}
}

// Read snapshots the module sensors.
func (m *Module) Read() Reading {
	return Reading{
		DriveVelocity: m.sensor.DriveVelocity(),
		DrivePosition: m.sensor.DrivePosition(),
		SteerAngle:    m.sensor.SteerAngle(),
	}
}

// Apply forwards setpoints to the motors.
func (m *Module) Apply(sp Setpoints) {
	m.actuator.SetDriveVelocity(sp.DriveVelocity, sp.Feedforward)
	m.actuator.SetSteerPosition(sp.SteerPosition)
}

// Stop cuts output to both motors.
func (m *Module) Stop() {
	m.actuator.Stop()
}

// SetBrakeMode selects brake (true) or coast idle behavior for the drive motor.
func (m *Module) SetBrakeMode(brake bool) {
	m.actuator.SetBrakeMode(brake)
}
