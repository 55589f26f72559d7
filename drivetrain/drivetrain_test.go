package drivetrain

import (
	"math"
	"testing"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"swervebase/geometry"
	"swervebase/swervemodule"
)

func testConfig() Config {
	return Config{
		Modules:            Square(0.6),
		MaxSpeed:           4,
		MaxAngularSpeed:    2 * math.Pi,
		TranslationRate:    1000,
		RotationRate:       1000,
		DisableSecondOrder: true,
		Drive:              swervemodule.Gains{StaticGain: 0.01, VelocityGain: 0.2, VoltageCompensation: 12},
	}
}

func snapshot(heading, distance, steer float64) Snapshot {
	m := swervemodule.Reading{DrivePosition: distance, SteerAngle: steer}
	return Snapshot{Heading: heading, Modules: []swervemodule.Reading{m, m, m, m}}
}

func newTestDrivetrain(t *testing.T, cfg Config, initial Snapshot) *Drivetrain {
	t.Helper()
	d, err := New(cfg, initial, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return d
}

func TestConfig(t *testing.T) {
	cfg := Config{Modules: Square(0.5), MaxSpeed: 3, MaxAngularSpeed: 6}.WithDefaults()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.LoopPeriodSec, test.ShouldEqual, DefaultLoopPeriodSec)
	test.That(t, cfg.TranslationRate, test.ShouldEqual, DefaultTranslationRate)
	test.That(t, cfg.RotationRate, test.ShouldEqual, DefaultRotationRate)
	test.That(t, cfg.SecondOrderCoefficient, test.ShouldEqual, DefaultSecondOrderCoefficient)
	test.That(t, cfg.Drive.VoltageCompensation, test.ShouldEqual, DefaultVoltageCompensation)
	test.That(t, cfg.KeepAngle.RotationSettleSec, test.ShouldEqual, 0.25)
	test.That(t, cfg.ModuleName(1), test.ShouldEqual, "front_right")
	test.That(t, Config{}.ModuleName(2), test.ShouldEqual, "module2")

	for name, bad := range map[string]Config{
		"one module":       {Modules: Square(0.5)[:1], MaxSpeed: 3, MaxAngularSpeed: 6},
		"zero max speed":   {Modules: Square(0.5), MaxAngularSpeed: 6},
		"zero max angular": {Modules: Square(0.5), MaxSpeed: 3},
		"negative rate":    {Modules: Square(0.5), MaxSpeed: 3, MaxAngularSpeed: 6, RotationRate: -1},
		"duplicate names": {
			Modules:  []ModuleConfig{{Name: "a", X: 1}, {Name: "a", X: -1}},
			MaxSpeed: 3, MaxAngularSpeed: 6,
		},
	} {
		t.Run(name, func(t *testing.T) {
			test.That(t, bad.WithDefaults().Validate(), test.ShouldNotBeNil)
		})
	}
}

func TestNewRejectsBadGeometry(t *testing.T) {
	cfg := testConfig()
	cfg.Modules = []ModuleConfig{{}, {}, {}, {}}
	_, err := New(cfg, snapshot(0, 0, 0), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(testConfig(), Snapshot{Modules: make([]swervemodule.Reading, 3)}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDriveForward(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	sps, err := d.Drive(Command{XSpeed: 1}, snapshot(0, 0, 0), time.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(sps), test.ShouldEqual, 4)
	for _, sp := range sps {
		test.That(t, sp.DriveVelocity, test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, sp.SteerPosition, test.ShouldAlmostEqual, 0, 1e-9)
		test.That(t, sp.Feedforward, test.ShouldAlmostEqual, (0.01+0.2)*12, 1e-9)
	}
	desired := d.DesiredChassisSpeed()
	test.That(t, desired.VX, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, desired.VY, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestDriveDesaturates(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	sps, err := d.Drive(Command{XSpeed: 10, Rot: 1}, snapshot(0, 0, 0), time.Now())
	test.That(t, err, test.ShouldBeNil)
	peak := 0.0
	for _, sp := range sps {
		peak = math.Max(peak, math.Abs(sp.DriveVelocity))
	}
	test.That(t, peak, test.ShouldAlmostEqual, 4, 1e-9)
}

func TestDriveRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.TranslationRate = 0
	d := newTestDrivetrain(t, cfg, snapshot(0, 0, 0))
	sps, err := d.Drive(Command{XSpeed: 1}, snapshot(0, 0, 0), time.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sps[0].DriveVelocity, test.ShouldAlmostEqual, DefaultTranslationRate*DefaultLoopPeriodSec, 1e-9)
	test.That(t, d.Telemetry().ShapedCommand.VX, test.ShouldAlmostEqual, 0.04, 1e-9)
}

func TestDriveFieldRelative(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	// Facing field +Y, a field +X command drives to the robot's right.
	sps, err := d.Drive(Command{XSpeed: 1, FieldRelative: true}, snapshot(math.Pi/2, 0, -0.2), time.Now())
	test.That(t, err, test.ShouldBeNil)
	for _, sp := range sps {
		test.That(t, sp.DriveVelocity, test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, sp.SteerPosition, test.ShouldAlmostEqual, -math.Pi/2, 1e-9)
	}
	test.That(t, d.Telemetry().FieldRelative, test.ShouldBeTrue)
}

func TestDriveHoldsSteerAtRest(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0.3))
	sps, err := d.Drive(Command{}, snapshot(0, 0, 7.2), time.Now())
	test.That(t, err, test.ShouldBeNil)
	for _, sp := range sps {
		test.That(t, sp.DriveVelocity, test.ShouldEqual, 0)
		test.That(t, sp.SteerPosition, test.ShouldEqual, 7.2)
	}
}

func TestDriveKeepAngle(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	now := time.Unix(100, 0)
	cmd := Command{XSpeed: 1, KeepAngle: true}
	for i := 0; i < 20; i++ {
		_, err := d.Drive(cmd, snapshot(0, 0, 0), now)
		test.That(t, err, test.ShouldBeNil)
		now = now.Add(20 * time.Millisecond)
	}
	// The robot drifted 0.1 rad counter-clockwise while translating.
	_, err := d.Drive(cmd, snapshot(0.1, 0, 0), now)
	test.That(t, err, test.ShouldBeNil)
	tel := d.Telemetry()
	test.That(t, tel.HoldingAngle, test.ShouldBeTrue)
	test.That(t, tel.LockedHeading, test.ShouldEqual, 0)
	test.That(t, d.DesiredChassisSpeed().Omega, test.ShouldAlmostEqual, -0.1*0.5, 1e-9)
}

func TestDriveKeepAngleRelocksWhenEnabled(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	now := time.Unix(100, 0)
	drive := func(cmd Command, heading float64) {
		t.Helper()
		_, err := d.Drive(cmd, snapshot(heading, 0, 0), now)
		test.That(t, err, test.ShouldBeNil)
		now = now.Add(20 * time.Millisecond)
	}
	for i := 0; i < 20; i++ {
		drive(Command{XSpeed: 1, KeepAngle: true}, 0)
	}
	test.That(t, d.Telemetry().LockedHeading, test.ShouldEqual, 0)

	// Turn to 1.2 rad with heading hold off, then rest.
	for i := 0; i < 12; i++ {
		drive(Command{Rot: 5}, float64(i+1)*0.1)
	}
	for i := 0; i < 50; i++ {
		drive(Command{}, 1.2)
	}

	_, err := d.Drive(Command{XSpeed: 1, KeepAngle: true}, snapshot(1.2, 0, 0), now)
	test.That(t, err, test.ShouldBeNil)
	tel := d.Telemetry()
	test.That(t, tel.LockedHeading, test.ShouldAlmostEqual, 1.2, 1e-9)
	test.That(t, tel.HoldingAngle, test.ShouldBeTrue)
	test.That(t, d.DesiredChassisSpeed().Omega, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestDriveRejectsWrongSnapshot(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	_, err := d.Drive(Command{XSpeed: 1}, Snapshot{Modules: make([]swervemodule.Reading, 2)}, time.Now())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = d.UpdateOdometry(Snapshot{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOdometry(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0.5, 10, 0))
	test.That(t, d.Pose(), test.ShouldResemble, geometry.Pose{})

	// The raw heading at start defines field heading zero.
	pose, err := d.UpdateOdometry(snapshot(0.5, 11, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.X, test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, pose.Heading, test.ShouldAlmostEqual, 0, 1e-12)

	test.That(t, d.ResetPose(geometry.Pose{X: 2, Y: 3, Heading: math.Pi / 2}, snapshot(0.5, 11, 0)), test.ShouldBeNil)
	test.That(t, d.FieldHeading(0.5), test.ShouldAlmostEqual, math.Pi/2, 1e-12)
	test.That(t, d.Telemetry().LockedHeading, test.ShouldAlmostEqual, math.Pi/2, 1e-12)

	pose, err = d.UpdateOdometry(snapshot(0.5, 12, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.X, test.ShouldAlmostEqual, 2, 1e-9)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 4, 1e-9)

	test.That(t, d.ResetHeading(0, snapshot(0.5, 12, 0)), test.ShouldBeNil)
	pose = d.Pose()
	test.That(t, pose.X, test.ShouldAlmostEqual, 2, 1e-9)
	test.That(t, pose.Y, test.ShouldAlmostEqual, 4, 1e-9)
	test.That(t, pose.Heading, test.ShouldEqual, 0)
}

func TestChassisSpeedAndAccel(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	moving := snapshot(0, 0, 0)
	for i := range moving.Modules {
		moving.Modules[i].DriveVelocity = 0.5
	}
	_, err := d.UpdateOdometry(moving)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ChassisSpeed().VX, test.ShouldAlmostEqual, 0.5, 1e-9)
	test.That(t, d.ChassisAccel().AX, test.ShouldAlmostEqual, 0.5/DefaultLoopPeriodSec, 1e-6)
}

func TestTelemetryIsACopy(t *testing.T) {
	d := newTestDrivetrain(t, testConfig(), snapshot(0, 0, 0))
	_, err := d.Drive(Command{XSpeed: 1}, snapshot(0, 0, 0), time.Now())
	test.That(t, err, test.ShouldBeNil)

	tel := d.Telemetry()
	test.That(t, len(tel.Modules), test.ShouldEqual, 4)
	test.That(t, tel.Modules[0].Name, test.ShouldEqual, "front_left")
	tel.Modules[0].Setpoints.DriveVelocity = 99
	test.That(t, d.Telemetry().Modules[0].Setpoints.DriveVelocity, test.ShouldAlmostEqual, 1, 1e-9)
}

func TestStopAndTuning(t *testing.T) {
	cfg := testConfig()
	cfg.TranslationRate = 0
	d := newTestDrivetrain(t, cfg, snapshot(0, 0, 0))

	test.That(t, d.SetSpeedScale(-1), test.ShouldNotBeNil)
	test.That(t, d.SetSpeedScale(0.5), test.ShouldBeNil)
	test.That(t, d.ChangeSlewRate(0, 1), test.ShouldNotBeNil)
	test.That(t, d.ChangeSlewRate(100, 100), test.ShouldBeNil)

	sps, err := d.Drive(Command{XSpeed: 1}, snapshot(0, 0, 0), time.Now())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sps[0].DriveVelocity, test.ShouldAlmostEqual, 0.5, 1e-9)

	d.Stop()
	tel := d.Telemetry()
	test.That(t, tel.ShapedCommand.VX, test.ShouldEqual, 0)
	test.That(t, tel.Modules[0].Setpoints.DriveVelocity, test.ShouldEqual, 0)
	test.That(t, tel.SpeedScale, test.ShouldEqual, 0.5)
}
