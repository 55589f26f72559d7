// Package sim simulates swerve modules and a heading sensor so the drivetrain can run without
// hardware.
package sim

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"swervebase/anglemath"
	"swervebase/geometry"
	"swervebase/kinematics"
	"swervebase/swervemodule"
)

// Module is an ideal swerve module. The wheel reaches the commanded velocity immediately and the
// steer moves toward its target at SteerRate, or immediately when SteerRate is zero.
type Module struct {
	mu sync.Mutex

	steerRate float64

	velocity    float64
	position    float64
	steer       float64
	targetSteer float64
	feedforward float64
	brake       bool
	stopped     bool
}

// NewModule returns a module at rest with its steer at initialSteer.
func NewModule(initialSteer, steerRate float64) *Module {
	return &Module{steer: initialSteer, targetSteer: initialSteer, steerRate: math.Abs(steerRate), stopped: true}
}

// SetDriveVelocity implements swervemodule.Actuator.
func (m *Module) SetDriveVelocity(velocity, feedforwardVolts float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.velocity = velocity
	m.feedforward = feedforwardVolts
	m.stopped = false
}

// SetSteerPosition implements swervemodule.Actuator.
func (m *Module) SetSteerPosition(position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targetSteer = position
	m.stopped = false
}

// Stop implements swervemodule.Actuator. The steer holds where it is.
func (m *Module) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.velocity = 0
	m.feedforward = 0
	m.targetSteer = m.steer
	m.stopped = true
}

// SetBrakeMode implements swervemodule.Actuator.
func (m *Module) SetBrakeMode(brake bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brake = brake
}

// DriveVelocity implements swervemodule.Sensor.
func (m *Module) DriveVelocity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.velocity
}

// DrivePosition implements swervemodule.Sensor.
func (m *Module) DrivePosition() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// SteerAngle implements swervemodule.Sensor.
func (m *Module) SteerAngle() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steer
}

// Brake reports the selected idle mode.
func (m *Module) Brake() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brake
}

// Stopped reports whether Stop was the last command.
func (m *Module) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Step advances the module by dt seconds and returns its state during the step.
func (m *Module) Step(dt float64) kinematics.ModuleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.targetSteer - m.steer
	if limit := m.steerRate * dt; m.steerRate > 0 && math.Abs(delta) > limit {
		delta = math.Copysign(limit, delta)
	}
	m.steer += delta
	m.position += m.velocity * dt
	return kinematics.ModuleState{Speed: m.velocity, Angle: m.steer}
}

// Gyro is a simulated heading sensor with the reset and angle adjustment behavior of a typical
// navigation board: Heading is the yaw accumulated since the last Reset plus the adjustment.
type Gyro struct {
	mu         sync.Mutex
	yaw        float64
	adjustment float64
	drift      float64
}

// NewGyro returns a gyro reading zero. drift is added to the yaw every second.
func NewGyro(drift float64) *Gyro {
	return &Gyro{drift: drift}
}

// Heading returns the adjusted yaw in radians.
func (g *Gyro) Heading(_ context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return anglemath.Normalize(g.yaw + g.adjustment), nil
}

// Reset zeroes the accumulated yaw.
func (g *Gyro) Reset(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.yaw = 0
	return nil
}

// SetAngleAdjustment sets the offset added to the yaw.
func (g *Gyro) SetAngleAdjustment(angle float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adjustment = angle
}

func (g *Gyro) rotate(angle, dt float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.yaw = anglemath.Normalize(g.yaw + angle + g.drift*dt)
}

// Robot is a set of simulated modules on a rigid chassis with a gyro.
type Robot struct {
	Modules []*Module
	Gyro    *Gyro

	mu   sync.Mutex
	kin  *kinematics.SwerveKinematics
	pose geometry.Pose
}

// NewRobot returns a robot at the origin with one module per offset.
func NewRobot(offsets []r2.Point, steerRate, gyroDrift float64) (*Robot, error) {
	kin, err := kinematics.New(offsets...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot simulate module layout")
	}
	r := &Robot{Gyro: NewGyro(gyroDrift), kin: kin}
	for range offsets {
		r.Modules = append(r.Modules, NewModule(0, steerRate))
	}
	return r, nil
}

// SwerveModules binds the simulated modules to swervemodule.Module values, named by names when
// given.
func (r *Robot) SwerveModules(names ...string) []*swervemodule.Module {
	out := make([]*swervemodule.Module, len(r.Modules))
	for i, m := range r.Modules {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		out[i] = swervemodule.NewModule(name, m, m)
	}
	return out
}

// Step advances every module by dt seconds and moves the chassis by the least-squares fit of
// the module velocities.
func (r *Robot) Step(dt float64) {
	states := make([]kinematics.ModuleState, len(r.Modules))
	for i, m := range r.Modules {
		states[i] = m.Step(dt)
	}
	speeds := r.kin.ToChassisSpeeds(states...)
	r.Gyro.rotate(speeds.Omega*dt, dt)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pose = r.pose.Exp(geometry.Twist{DX: speeds.VX * dt, DY: speeds.VY * dt, DTheta: speeds.Omega * dt})
}

// TruePose returns the simulated ground-truth pose.
func (r *Robot) TruePose() geometry.Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose
}
