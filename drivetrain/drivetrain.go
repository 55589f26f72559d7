// Package drivetrain runs one swerve control iteration: command shaping, heading hold,
// kinematics, and per-module setpoints, plus the pose estimate fed by the same sensor snapshot.
package drivetrain

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"swervebase/anglemath"
	"swervebase/geometry"
	"swervebase/headinghold"
	"swervebase/kinematics"
	"swervebase/odometry"
	"swervebase/shaper"
	"swervebase/swervemodule"
)

// Command is one cycle of driver input. Speeds are m/s and rad/s; XSpeed is forward and YSpeed
// is to the left in whichever frame FieldRelative selects.
type Command struct {
	XSpeed        float64 `json:"x_speed"`
	YSpeed        float64 `json:"y_speed"`
	Rot           float64 `json:"rot"`
	FieldRelative bool    `json:"field_relative"`
	KeepAngle     bool    `json:"keep_angle"`
}

// Snapshot is the sensor state read once per cycle. Every computation in a cycle uses the same
// snapshot. Heading is the raw heading sensor reading in radians.
type Snapshot struct {
	Heading float64                `json:"heading"`
	Modules []swervemodule.Reading `json:"modules"`
}

// Positions returns the module positions of the snapshot.
func (s Snapshot) Positions() []kinematics.ModulePosition {
	positions := make([]kinematics.ModulePosition, len(s.Modules))
	for i, m := range s.Modules {
		positions[i] = m.Position()
	}
	return positions
}

// States returns the measured module states of the snapshot.
func (s Snapshot) States() []kinematics.ModuleState {
	states := make([]kinematics.ModuleState, len(s.Modules))
	for i, m := range s.Modules {
		states[i] = m.State()
	}
	return states
}

// Drivetrain holds the state carried between control iterations. It is not safe for concurrent
// use; callers that poll telemetry from another goroutine must serialize access and only hand
// out the copies returned by Telemetry.
type Drivetrain struct {
	cfg    Config
	logger logging.Logger

	kin        *kinematics.SwerveKinematics
	controller *swervemodule.Controller
	shaper     *shaper.Shaper
	hold       *headinghold.Controller
	odometry   *odometry.Estimator

	// added to the raw sensor heading to get the field heading
	headingOffset float64

	shaped    kinematics.ChassisSpeeds
	command   kinematics.ChassisSpeeds
	desired   []kinematics.ModuleState
	setpoints []swervemodule.Setpoints
	measured  []kinematics.ModuleState
	speed     kinematics.ChassisSpeeds
	lastSpeed kinematics.ChassisSpeeds
	accel     kinematics.ChassisAccel
	heading   float64
	keepAngle bool
}

// New validates cfg and returns a drivetrain whose pose starts at the origin facing the field +X
// axis, with the odometry baseline taken from initial.
func New(cfg Config, initial Snapshot, logger logging.Logger) (*Drivetrain, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid drivetrain config")
	}
	kin, err := kinematics.New(cfg.Offsets()...)
	if err != nil {
		return nil, err
	}
	n := kin.NumModules()
	if len(initial.Modules) != n {
		return nil, errors.Errorf("drivetrain has %d modules, initial snapshot has %d", n, len(initial.Modules))
	}

	angles := make([]float64, n)
	for i, m := range initial.Modules {
		angles[i] = m.State().Angle
	}
	kin.ResetHeadings(angles...)

	d := &Drivetrain{
		cfg:           cfg,
		logger:        logger,
		kin:           kin,
		controller:    swervemodule.NewController(cfg.Drive, cfg.SteerEpsilon),
		shaper:        shaper.New(cfg.TranslationRate, cfg.RotationRate, cfg.LoopPeriodSec, false),
		hold:          headinghold.New(cfg.KeepAngle),
		headingOffset: -initial.Heading,
		desired:       make([]kinematics.ModuleState, n),
		setpoints:     make([]swervemodule.Setpoints, n),
		measured:      initial.States(),
	}
	d.odometry, err = odometry.New(kin, d.FieldHeading(initial.Heading), initial.Positions(), geometry.Pose{})
	if err != nil {
		return nil, err
	}
	d.speed = kin.ToChassisSpeeds(d.measured...)
	d.lastSpeed = d.speed
	return d, nil
}

// Config returns the configuration with defaults applied.
func (d *Drivetrain) Config() Config {
	return d.cfg
}

// NumModules returns the number of modules.
func (d *Drivetrain) NumModules() int {
	return d.kin.NumModules()
}

func (d *Drivetrain) checkSnapshot(snap Snapshot) error {
	if len(snap.Modules) != d.kin.NumModules() {
		return errors.Errorf("snapshot has %d modules, drivetrain has %d", len(snap.Modules), d.kin.NumModules())
	}
	return nil
}

// FieldHeading returns the heading of the robot in the field frame for a raw sensor reading.
func (d *Drivetrain) FieldHeading(raw float64) float64 {
	return anglemath.Normalize(raw + d.headingOffset)
}

// Drive runs one control iteration and returns the setpoints for every module, in module order.
// The only error is a snapshot whose module count does not match the configuration.
func (d *Drivetrain) Drive(cmd Command, snap Snapshot, now time.Time) ([]swervemodule.Setpoints, error) {
	if err := d.checkSnapshot(snap); err != nil {
		return nil, err
	}
	heading := d.FieldHeading(snap.Heading)
	d.heading = heading

	if d.shaper.SetFieldRelative(cmd.FieldRelative) {
		d.logger.Debugw("drive frame changed", "field_relative", cmd.FieldRelative)
	}
	vx, vy, rot := d.shaper.Apply(cmd.XSpeed, cmd.YSpeed, cmd.Rot)
	d.shaped = kinematics.ChassisSpeeds{VX: vx, VY: vy, Omega: rot}

	if cmd.KeepAngle && !d.keepAngle {
		// The lock was not tracked while heading hold was off.
		d.hold.ForceUpdateKeepAngle(heading)
	}
	d.keepAngle = cmd.KeepAngle
	if cmd.KeepAngle {
		rot = d.hold.Update(vx, vy, rot, heading, now)
	}

	speeds := kinematics.ChassisSpeeds{VX: vx, VY: vy, Omega: rot}
	if cmd.FieldRelative {
		speeds = kinematics.FromFieldRelative(speeds, heading)
	}
	if !d.cfg.DisableSecondOrder {
		speeds = kinematics.SecondOrderCorrection(speeds, d.cfg.SecondOrderCoefficient)
	}
	if d.cfg.Discretize {
		speeds = kinematics.Discretize(speeds, d.cfg.LoopPeriodSec)
	}
	d.command = speeds

	states := d.kin.ToModuleStates(speeds)
	kinematics.Desaturate(states, d.cfg.MaxSpeed)
	copy(d.desired, states)

	out := make([]swervemodule.Setpoints, len(states))
	for i, state := range states {
		out[i] = d.controller.Setpoints(state, snap.Modules[i].SteerAngle)
	}
	copy(d.setpoints, out)
	return out, nil
}

// UpdateOdometry advances the pose estimate and the measured chassis speed from snap. It
// returns the new pose.
func (d *Drivetrain) UpdateOdometry(snap Snapshot) (geometry.Pose, error) {
	if err := d.checkSnapshot(snap); err != nil {
		return d.odometry.Pose(), err
	}
	d.measured = snap.States()
	d.lastSpeed = d.speed
	d.speed = d.kin.ToChassisSpeeds(d.measured...)
	d.accel = kinematics.NewChassisAccel(d.speed, d.lastSpeed, d.cfg.LoopPeriodSec)
	d.heading = d.FieldHeading(snap.Heading)
	return d.odometry.Update(d.heading, snap.Positions()), nil
}

// ResetPose moves the pose estimate to pose. The field heading is redefined so that the raw
// heading in snap corresponds to pose.Heading, and the heading lock follows it.
func (d *Drivetrain) ResetPose(pose geometry.Pose, snap Snapshot) error {
	if err := d.checkSnapshot(snap); err != nil {
		return err
	}
	pose = geometry.NewPose(pose.X, pose.Y, pose.Heading)
	d.headingOffset = pose.Heading - snap.Heading
	if err := d.odometry.Reset(pose, pose.Heading, snap.Positions()); err != nil {
		return err
	}
	d.heading = pose.Heading
	d.hold.ForceUpdateKeepAngle(pose.Heading)
	d.logger.Infow("pose reset", "pose", pose.String())
	return nil
}

// ResetHeading keeps the current position and resets the heading to angle.
func (d *Drivetrain) ResetHeading(angle float64, snap Snapshot) error {
	current := d.odometry.Pose()
	return d.ResetPose(geometry.Pose{X: current.X, Y: current.Y, Heading: angle}, snap)
}

// ForceUpdateKeepAngle locks heading hold on the field heading of snap.
func (d *Drivetrain) ForceUpdateKeepAngle(snap Snapshot) {
	d.hold.ForceUpdateKeepAngle(d.FieldHeading(snap.Heading))
}

// Stop brings the shaped command to rest so the next command ramps up from zero.
func (d *Drivetrain) Stop() {
	d.shaper.Reset()
	d.shaped = kinematics.ChassisSpeeds{}
	d.command = kinematics.ChassisSpeeds{}
	for i := range d.desired {
		d.desired[i].Speed = 0
		d.setpoints[i].DriveVelocity = 0
		d.setpoints[i].Feedforward = 0
	}
}

// SetSpeedScale sets the factor applied to raw commands before slew limiting.
func (d *Drivetrain) SetSpeedScale(factor float64) error {
	if factor < 0 {
		return errors.Errorf("speed scale cannot be negative, got %v", factor)
	}
	d.shaper.SetScale(factor)
	return nil
}

// ChangeSlewRate replaces the slew limits, continuing from the latest shaped command.
func (d *Drivetrain) ChangeSlewRate(translation, rotation float64) error {
	if translation <= 0 || rotation <= 0 {
		return errors.Errorf("slew rates must be positive, got %v and %v", translation, rotation)
	}
	d.shaper.ChangeRates(translation, rotation)
	d.logger.Debugw("slew rate changed", "translation", translation, "rotation", rotation)
	return nil
}

// Pose returns the pose estimate.
func (d *Drivetrain) Pose() geometry.Pose {
	return d.odometry.Pose()
}

// ChassisSpeed returns the robot-relative chassis speed measured at the last odometry update.
func (d *Drivetrain) ChassisSpeed() kinematics.ChassisSpeeds {
	return d.speed
}

// DesiredChassisSpeed returns the robot-relative chassis speed of the last desaturated module
// states.
func (d *Drivetrain) DesiredChassisSpeed() kinematics.ChassisSpeeds {
	return d.kin.ToChassisSpeeds(d.desired...)
}

// ChassisAccel returns the finite-difference acceleration between the last two odometry updates.
func (d *Drivetrain) ChassisAccel() kinematics.ChassisAccel {
	return d.accel
}

// ModuleTelemetry is the per-module part of Telemetry.
type ModuleTelemetry struct {
	Name      string                 `json:"name"`
	Measured  kinematics.ModuleState `json:"measured"`
	Desired   kinematics.ModuleState `json:"desired"`
	Setpoints swervemodule.Setpoints `json:"setpoints"`
}

// Telemetry is a copy of the drivetrain state for diagnostics.
type Telemetry struct {
	Pose          geometry.Pose            `json:"pose"`
	Heading       float64                  `json:"heading"`
	ChassisSpeed  kinematics.ChassisSpeeds `json:"chassis_speed"`
	DesiredSpeed  kinematics.ChassisSpeeds `json:"desired_speed"`
	CommandSpeed  kinematics.ChassisSpeeds `json:"command_speed"`
	ShapedCommand kinematics.ChassisSpeeds `json:"shaped_command"`
	Accel         kinematics.ChassisAccel  `json:"accel"`
	FieldRelative bool                     `json:"field_relative"`
	KeepAngle     bool                     `json:"keep_angle"`
	LockedHeading float64                  `json:"locked_heading"`
	HoldingAngle  bool                     `json:"holding_angle"`
	SpeedScale    float64                  `json:"speed_scale"`
	Modules       []ModuleTelemetry        `json:"modules"`
}

// Telemetry returns a snapshot of the drivetrain state. The result shares no memory with the
// drivetrain.
func (d *Drivetrain) Telemetry() Telemetry {
	t := Telemetry{
		Pose:          d.odometry.Pose(),
		Heading:       d.heading,
		ChassisSpeed:  d.speed,
		DesiredSpeed:  d.DesiredChassisSpeed(),
		CommandSpeed:  d.command,
		ShapedCommand: d.shaped,
		Accel:         d.accel,
		FieldRelative: d.shaper.FieldRelative(),
		KeepAngle:     d.keepAngle,
		LockedHeading: d.hold.KeepAngle(),
		HoldingAngle:  d.hold.Holding(),
		SpeedScale:    d.shaper.Scale(),
		Modules:       make([]ModuleTelemetry, d.kin.NumModules()),
	}
	for i := range t.Modules {
		t.Modules[i] = ModuleTelemetry{
			Name:      d.cfg.ModuleName(i),
			Measured:  d.measured[i],
			Desired:   d.desired[i],
			Setpoints: d.setpoints[i],
		}
	}
	return t
}
