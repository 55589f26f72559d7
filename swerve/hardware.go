package swerve

import (
	"time"

	"swervebase/sim"
	"swervebase/swervemodule"
)

// hardware is what a swerve base drives: one module per configured position and a heading
// source, plus optional hooks for staleness detection and simulation.
type hardware struct {
	modules []*swervemodule.Module
	heading HeadingSource

	// fresh reports whether module telemetry is recent enough to trust. nil means always.
	fresh func(now time.Time) bool
	// step advances simulated hardware by one control period.
	step  func(dt float64)
	close func() error
}

func newSimHardware(cfg *Config) (hardware, *sim.Robot, error) {
	dt := cfg.Drivetrain.WithDefaults()
	robot, err := sim.NewRobot(dt.Offsets(), 0, 0)
	if err != nil {
		return hardware{}, nil, err
	}
	names := make([]string, len(dt.Modules))
	for i := range names {
		names[i] = dt.ModuleName(i)
	}
	return hardware{
		modules: robot.SwerveModules(names...),
		heading: robot.Gyro,
		step:    robot.Step,
	}, robot, nil
}
