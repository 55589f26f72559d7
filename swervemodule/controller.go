package swervemodule

import (
	"math"

	"swervebase/anglemath"
	"swervebase/kinematics"
)

// Gains is the drive feedforward model: volts = (StaticGain*sign(v) + VelocityGain*v) scaled by
// VoltageCompensation, the nominal supply voltage the motor controllers compensate to.
type Gains struct {
	StaticGain          float64 `json:"static_gain" yaml:"static_gain"`
	VelocityGain        float64 `json:"velocity_gain" yaml:"velocity_gain"`
	VoltageCompensation float64 `json:"voltage_compensation" yaml:"voltage_compensation"`
}

// Setpoints are the per-cycle outputs for one module.
type Setpoints struct {
	DriveVelocity float64 `json:"drive_velocity"`
	SteerPosition float64 `json:"steer_position"`
	Feedforward   float64 `json:"feedforward"`
}

// Optimize returns the state that produces the same wheel motion as desired while steering at
// most a quarter turn away from current. When the desired heading is more than π/2 from current,
// the wheel is pointed the opposite way and driven backwards.
func Optimize(desired kinematics.ModuleState, current float64) kinematics.ModuleState {
	delta := anglemath.ShortestDelta(desired.Angle, current)
	if math.Abs(delta) > math.Pi/2 {
		return kinematics.ModuleState{
			Speed: -desired.Speed,
			Angle: anglemath.Normalize(desired.Angle + math.Pi),
		}
	}
	return kinematics.ModuleState{Speed: desired.Speed, Angle: anglemath.Normalize(desired.Angle)}
}

// Controller computes module setpoints.
type Controller struct {
	gains Gains
	// below this wheel speed the steer target is frozen at the measured angle
	epsilon float64
}

// NewController returns a module controller.
func NewController(gains Gains, epsilon float64) *Controller {
	return &Controller{gains: gains, epsilon: math.Abs(epsilon)}
}

// Feedforward returns the drive feedforward in volts for a wheel speed.
func (c *Controller) Feedforward(speed float64) float64 {
	sign := 0.0
	switch {
	case speed > 0:
		sign = 1
	case speed < 0:
		sign = -1
	}
	return (c.gains.StaticGain*sign + c.gains.VelocityGain*speed) * c.gains.VoltageCompensation
}

// ComputeSetpoints turns an already optimized state into setpoints. The steer target is unwrapped
// onto the continuous encoder scale so the mechanism never unwinds a full turn when the logical
// angle crosses 0/2π.
func (c *Controller) ComputeSetpoints(optimized kinematics.ModuleState, measuredSteer float64) Setpoints {
	return Setpoints{
		DriveVelocity: optimized.Speed,
		SteerPosition: anglemath.NearestContinuous(optimized.Angle, measuredSteer),
		Feedforward:   c.Feedforward(optimized.Speed),
	}
}

// Setpoints optimizes desired against the measured steer position and computes the setpoints.
// A desired speed below the controller's epsilon holds the steer where it is.
func (c *Controller) Setpoints(desired kinematics.ModuleState, measuredSteer float64) Setpoints {
	if math.Abs(desired.Speed) < c.epsilon || desired.Speed == 0 {
		return Setpoints{
			DriveVelocity: desired.Speed,
			SteerPosition: measuredSteer,
			Feedforward:   c.Feedforward(desired.Speed),
		}
	}
	return c.ComputeSetpoints(Optimize(desired, measuredSteer), measuredSteer)
}
