// Package main runs the swerve control loop against simulated modules from a YAML profile.
package main

import (
	"context"
	"math"
	"time"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"swervebase/drivetrain"
	"swervebase/geometry"
	"swervebase/sim"
	"swervebase/swervemodule"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("swervesim"))
}

// Arguments for the command.
type Arguments struct {
	Profile string `flag:"0,required,usage=path to a YAML robot profile"`
	Debug   bool   `flag:"debug,usage=log every control iteration"`
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	profile, err := loadProfile(argsParsed.Profile)
	if err != nil {
		return err
	}
	result, err := run(ctx, profile, logger)
	if err != nil {
		return err
	}
	logger.Infow("simulation finished",
		"estimate", result.Estimate.String(),
		"truth", result.Truth.String(),
		"position_error_m", result.PositionError(),
		"iterations", result.Iterations,
	)
	return nil
}

// Result is the outcome of a simulated run.
type Result struct {
	Estimate   geometry.Pose
	Truth      geometry.Pose
	Iterations int
}

// PositionError is the distance between the odometry estimate and the simulated truth.
func (r Result) PositionError() float64 {
	return math.Hypot(r.Estimate.X-r.Truth.X, r.Estimate.Y-r.Truth.Y)
}

func snapshot(ctx context.Context, gyro *sim.Gyro, modules []*swervemodule.Module) (drivetrain.Snapshot, error) {
	heading, err := gyro.Heading(ctx)
	if err != nil {
		return drivetrain.Snapshot{}, err
	}
	snap := drivetrain.Snapshot{Heading: heading}
	for _, m := range modules {
		snap.Modules = append(snap.Modules, m.Read())
	}
	return snap, nil
}

// run drives a simulated robot through every step of profile on a simulated clock.
func run(ctx context.Context, profile *Profile, logger logging.Logger) (Result, error) {
	cfg := profile.Drivetrain.WithDefaults()
	robot, err := sim.NewRobot(cfg.Offsets(), profile.SteerRate, profile.GyroDrift)
	if err != nil {
		return Result{}, err
	}
	names := make([]string, len(cfg.Modules))
	for i := range names {
		names[i] = cfg.ModuleName(i)
	}
	modules := robot.SwerveModules(names...)

	snap, err := snapshot(ctx, robot.Gyro, modules)
	if err != nil {
		return Result{}, err
	}
	drive, err := drivetrain.New(cfg, snap, logger)
	if err != nil {
		return Result{}, err
	}

	period := time.Duration(cfg.LoopPeriodSec * float64(time.Second))
	now := time.Unix(0, 0)
	cmd := drivetrain.Command{FieldRelative: profile.FieldRelative, KeepAngle: profile.KeepAngle}
	iterations := 0

	for i, step := range profile.Steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if step.ResetPose != nil {
			if err := robot.Gyro.Reset(ctx); err != nil {
				return Result{}, err
			}
			robot.Gyro.SetAngleAdjustment(step.ResetPose.Theta)
			if snap, err = snapshot(ctx, robot.Gyro, modules); err != nil {
				return Result{}, err
			}
			pose := geometry.NewPose(step.ResetPose.X, step.ResetPose.Y, step.ResetPose.Theta)
			if err := drive.ResetPose(pose, snap); err != nil {
				return Result{}, err
			}
		}
		if step.SpeedScale != nil {
			if err := drive.SetSpeedScale(*step.SpeedScale); err != nil {
				return Result{}, err
			}
		}
		if step.FieldRelative != nil {
			cmd.FieldRelative = *step.FieldRelative
		}
		if step.KeepAngle != nil {
			cmd.KeepAngle = *step.KeepAngle
		}
		cmd.XSpeed, cmd.YSpeed, cmd.Rot = step.XSpeed, step.YSpeed, step.Rot

		ticks := int(math.Round(step.DurationSec / cfg.LoopPeriodSec))
		for tick := 0; tick < ticks; tick++ {
			now = now.Add(period)
			if snap, err = snapshot(ctx, robot.Gyro, modules); err != nil {
				return Result{}, err
			}
			setpoints, err := drive.Drive(cmd, snap, now)
			if err != nil {
				return Result{}, err
			}
			for j, sp := range setpoints {
				modules[j].Apply(sp)
			}
			robot.Step(cfg.LoopPeriodSec)
			pose, err := drive.UpdateOdometry(snap)
			if err != nil {
				return Result{}, err
			}
			iterations++
			logger.Debugw("iteration", "step", i, "pose", pose.String())
		}

		logger.Infow("step complete",
			"step", i,
			"name", step.Name,
			"estimate", drive.Pose().String(),
			"truth", robot.TruePose().String(),
		)
	}

	for _, m := range modules {
		m.Stop()
	}
	return Result{Estimate: drive.Pose(), Truth: robot.TruePose(), Iterations: iterations}, nil
}
