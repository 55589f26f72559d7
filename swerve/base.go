// Package swerve implements a swerve drive base.
package swerve

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/base"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	rdkutils "go.viam.com/rdk/utils"
	viamutils "go.viam.com/utils"

	"swervebase/anglemath"
	"swervebase/drivetrain"
	"swervebase/geometry"
	"swervebase/swervemodule"
)

const (
	startupTimeout  = time.Second
	startupPollRate = 10 * time.Millisecond
)

var errStaleTelemetry = errors.New("module telemetry is stale")

func init() {
	resource.RegisterComponent(
		base.API,
		Model,
		resource.Registration[base.Base, *Config]{
			Constructor: newBase,
		},
	)
}

type swerveBase struct {
	resource.Named
	resource.AlwaysRebuild

	logger     logging.Logger
	cfg        Config
	period     time.Duration
	geometries []spatialmath.Geometry
	hw         hardware
	opMgr      *operation.SingleOperationManager

	// mu serializes control iterations with commands and resets.
	mu       sync.Mutex
	drive    *drivetrain.Drivetrain
	cmd      drivetrain.Command
	active   bool
	lastSnap drivetrain.Snapshot
	misses   int

	// drive mode for SetVelocity and SetPower
	fieldRelative bool
	keepAngle     bool

	isMoving atomic.Bool

	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

func newBase(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (base.Base, error) {
	newConf, err := resource.NativeConfig[*Config](conf)
	if err != nil {
		return nil, err
	}

	geometries := []spatialmath.Geometry{}
	if conf.Frame != nil {
		frame, err := conf.Frame.ParseConfig()
		if err != nil {
			return nil, err
		}
		geometries = append(geometries, frame.Geometry())
	}

	var hw hardware
	if newConf.Simulate {
		hw, _, err = newSimHardware(newConf)
		if err != nil {
			return nil, err
		}
		logger.Info("running against simulated modules")
	} else {
		ms, err := movementsensor.FromDependencies(deps, newConf.MovementSensor)
		if err != nil {
			return nil, errors.Wrapf(err, "no movement sensor named %q", newConf.MovementSensor)
		}
		hw, err = newCANHardware(newConf, newSensorHeading(ms), logger)
		if err != nil {
			return nil, err
		}
	}

	b, err := makeBase(ctx, conf.ResourceName(), newConf, geometries, hw, logger)
	if err != nil {
		if hw.close != nil {
			err = multierr.Combine(err, hw.close())
		}
		return nil, err
	}
	b.startControlLoop()
	return b, nil
}

// makeBase builds a base around already opened hardware. The control loop is not started.
func makeBase(
	ctx context.Context,
	name resource.Name,
	cfg *Config,
	geometries []spatialmath.Geometry,
	hw hardware,
	logger logging.Logger,
) (*swerveBase, error) {
	if len(hw.modules) != len(cfg.Drivetrain.Modules) {
		return nil, errors.Errorf("configured %d modules but hardware has %d", len(cfg.Drivetrain.Modules), len(hw.modules))
	}
	b := &swerveBase{
		Named:      name.AsNamed(),
		logger:     logger,
		cfg:        *cfg,
		geometries: geometries,
		hw:         hw,
		opMgr:      operation.NewSingleOperationManager(),
		cmd: drivetrain.Command{
			FieldRelative: cfg.FieldRelative,
			KeepAngle:     cfg.KeepAngle,
		},
		fieldRelative: cfg.FieldRelative,
		keepAngle:     cfg.KeepAngle,
	}

	snap, err := b.waitForSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	b.drive, err = drivetrain.New(cfg.Drivetrain, snap, logger)
	if err != nil {
		return nil, err
	}
	b.cfg.Drivetrain = b.drive.Config()
	b.period = time.Duration(b.cfg.Drivetrain.LoopPeriodSec * float64(time.Second))
	b.lastSnap = snap

	for _, m := range hw.modules {
		m.SetBrakeMode(true)
	}
	return b, nil
}

func (b *swerveBase) waitForSnapshot(ctx context.Context) (drivetrain.Snapshot, error) {
	deadline := time.Now().Add(startupTimeout)
	for {
		snap, err := b.readSnapshot(ctx, time.Now())
		if err == nil {
			return snap, nil
		}
		if time.Now().After(deadline) {
			return drivetrain.Snapshot{}, errors.Wrap(err, "no usable sensor data at startup")
		}
		if !viamutils.SelectContextOrWait(ctx, startupPollRate) {
			return drivetrain.Snapshot{}, ctx.Err()
		}
	}
}

// readSnapshot reads the heading and every module once.
func (b *swerveBase) readSnapshot(ctx context.Context, now time.Time) (drivetrain.Snapshot, error) {
	if b.hw.fresh != nil && !b.hw.fresh(now) {
		return drivetrain.Snapshot{}, errStaleTelemetry
	}
	heading, err := b.hw.heading.Heading(ctx)
	if err != nil {
		return drivetrain.Snapshot{}, err
	}
	snap := drivetrain.Snapshot{Heading: heading, Modules: make([]swervemodule.Reading, len(b.hw.modules))}
	for i, m := range b.hw.modules {
		snap.Modules[i] = m.Read()
	}
	return snap, nil
}

func (b *swerveBase) startControlLoop() {
	cancelCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		b.controlThread(cancelCtx)
	}, b.activeBackgroundWorkers.Done)
}

func (b *swerveBase) controlThread(ctx context.Context) {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.controlStep(ctx, now)
		}
	}
}

// controlStep runs one iteration: read sensors, drive the modules, update odometry. A missing
// or stale snapshot is replaced by the previous one once; a second miss in a row stops the base.
func (b *swerveBase) controlStep(ctx context.Context, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.readSnapshot(ctx, now)
	if err != nil {
		b.misses++
		if b.misses > 1 {
			if b.misses == 2 {
				b.logger.CErrorw(ctx, "sensor data unavailable, stopping modules", "error", err)
			}
			b.stopLocked()
			return
		}
		b.logger.CWarnw(ctx, "sensor data unavailable, reusing last snapshot", "error", err)
		snap = b.lastSnap
	} else {
		if b.misses > 1 {
			b.logger.CInfo(ctx, "sensor data recovered")
		}
		b.misses = 0
		b.lastSnap = snap
	}

	if b.active {
		setpoints, err := b.drive.Drive(b.cmd, snap, now)
		if err != nil {
			b.logger.CErrorw(ctx, "drive iteration failed, stopping", "error", err)
			b.stopLocked()
			return
		}
		for i, sp := range setpoints {
			b.hw.modules[i].Apply(sp)
		}
	}
	if b.hw.step != nil {
		b.hw.step(b.cfg.Drivetrain.LoopPeriodSec)
	}
	if _, err := b.drive.UpdateOdometry(snap); err != nil {
		b.logger.CErrorw(ctx, "odometry update failed", "error", err)
	}
}

// stopLocked zeroes the command and disables every module. b.mu must be held.
func (b *swerveBase) stopLocked() {
	b.active = false
	b.cmd.XSpeed, b.cmd.YSpeed, b.cmd.Rot = 0, 0, 0
	b.drive.Stop()
	for _, m := range b.hw.modules {
		m.Stop()
	}
	b.isMoving.Store(false)
}

func (b *swerveBase) stopMotion() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// setCommand latches a robot command in m/s and rad/s for the control loop.
func (b *swerveBase) setCommand(xSpeed, ySpeed, rot float64, fieldRelative, keepAngle bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmd = drivetrain.Command{
		XSpeed:        xSpeed,
		YSpeed:        ySpeed,
		Rot:           rot,
		FieldRelative: fieldRelative,
		KeepAngle:     keepAngle,
	}
	b.active = true
	b.isMoving.Store(xSpeed != 0 || ySpeed != 0 || rot != 0)
}

func (b *swerveBase) driveMode() (fieldRelative, keepAngle bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fieldRelative, b.keepAngle
}

func (b *swerveBase) pose() geometry.Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drive.Pose()
}

// clampTranslation scales (x, y) down so its magnitude is at most limit.
func clampTranslation(x, y, limit float64) (float64, float64) {
	if norm := math.Hypot(x, y); norm > limit {
		return x * limit / norm, y * limit / norm
	}
	return x, y
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// SetVelocity drives at linear mm/s (Y forward, X right) and angular deg/s (Z counter-clockwise)
// until told otherwise.
func (b *swerveBase) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.opMgr.CancelRunning(ctx)
	dt := b.cfg.Drivetrain
	x, y := clampTranslation(linear.Y/1000, -linear.X/1000, dt.MaxSpeed)
	rot := clamp(rdkutils.DegToRad(angular.Z), dt.MaxAngularSpeed)
	fieldRelative, keepAngle := b.driveMode()
	b.setCommand(x, y, rot, fieldRelative, keepAngle)
	return nil
}

// SetPower drives at fractions of the configured maximum speeds.
func (b *swerveBase) SetPower(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	b.opMgr.CancelRunning(ctx)
	dt := b.cfg.Drivetrain
	x, y := clampTranslation(linear.Y, -linear.X, 1)
	rot := clamp(angular.Z, 1)
	fieldRelative, keepAngle := b.driveMode()
	b.setCommand(x*dt.MaxSpeed, y*dt.MaxSpeed, rot*dt.MaxAngularSpeed, fieldRelative, keepAngle)
	return nil
}

// MoveStraight drives robot-forward until odometry reports distanceMm travelled.
func (b *swerveBase) MoveStraight(ctx context.Context, distanceMm int, mmPerSec float64, extra map[string]interface{}) error {
	ctx, done := b.opMgr.New(ctx)
	defer done()
	if distanceMm == 0 || mmPerSec == 0 {
		b.stopMotion()
		return nil
	}

	speed := math.Min(math.Abs(mmPerSec)/1000, b.cfg.Drivetrain.MaxSpeed)
	target := math.Abs(float64(distanceMm)) / 1000
	direction := 1.0
	if (distanceMm < 0) != (mmPerSec < 0) {
		direction = -1
	}

	_, keepAngle := b.driveMode()
	start := b.pose()
	b.setCommand(direction*speed, 0, 0, false, keepAngle)
	defer b.stopMotion()

	timeout := time.Duration((2*target/speed)*float64(time.Second)) + time.Second
	deadline := time.Now().Add(timeout)
	for {
		if !viamutils.SelectContextOrWait(ctx, b.period) {
			return ctx.Err()
		}
		p := b.pose()
		if math.Hypot(p.X-start.X, p.Y-start.Y) >= target {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("move straight did not cover %dmm within %v", distanceMm, timeout)
		}
	}
}

// Spin turns in place until the heading has changed by angleDeg.
func (b *swerveBase) Spin(ctx context.Context, angleDeg, degsPerSec float64, extra map[string]interface{}) error {
	ctx, done := b.opMgr.New(ctx)
	defer done()
	if angleDeg == 0 || degsPerSec == 0 {
		b.stopMotion()
		return nil
	}

	rate := math.Min(rdkutils.DegToRad(math.Abs(degsPerSec)), b.cfg.Drivetrain.MaxAngularSpeed)
	target := rdkutils.DegToRad(math.Abs(angleDeg))
	direction := 1.0
	if (angleDeg < 0) != (degsPerSec < 0) {
		direction = -1
	}

	last := b.pose().Heading
	b.setCommand(0, 0, direction*rate, false, false)
	defer b.stopMotion()

	turned := 0.0
	timeout := time.Duration((2*target/rate)*float64(time.Second)) + time.Second
	deadline := time.Now().Add(timeout)
	for {
		if !viamutils.SelectContextOrWait(ctx, b.period) {
			return ctx.Err()
		}
		heading := b.pose().Heading
		turned += anglemath.ShortestDelta(heading, last)
		last = heading
		if math.Abs(turned) >= target {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("spin did not turn %v degrees within %v", angleDeg, timeout)
		}
	}
}

// Stop cancels any running motion and disables the modules.
func (b *swerveBase) Stop(ctx context.Context, extra map[string]interface{}) error {
	b.opMgr.CancelRunning(ctx)
	b.stopMotion()
	return nil
}

func (b *swerveBase) IsMoving(ctx context.Context) (bool, error) {
	return b.isMoving.Load(), nil
}

// Properties reports the track width as the lateral spread of the modules.
func (b *swerveBase) Properties(ctx context.Context, extra map[string]interface{}) (base.Properties, error) {
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, m := range b.cfg.Drivetrain.Modules {
		minY = math.Min(minY, m.Y)
		maxY = math.Max(maxY, m.Y)
	}
	return base.Properties{
		WidthMeters:              maxY - minY,
		WheelCircumferenceMeters: b.cfg.WheelCircumferenceMeters,
	}, nil
}

func (b *swerveBase) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return b.geometries, nil
}

// Close stops the base, ends the control loop, and releases the hardware.
func (b *swerveBase) Close(ctx context.Context) error {
	err := b.Stop(ctx, nil)
	if b.cancel != nil {
		b.cancel()
	}
	b.activeBackgroundWorkers.Wait()
	if b.hw.close != nil {
		err = multierr.Combine(err, b.hw.close())
	}
	return err
}
