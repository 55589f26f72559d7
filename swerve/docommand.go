package swerve

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"swervebase/geometry"
)

// floatArg returns cmd[key] as a float64, or def when the key is absent.
func floatArg(cmd map[string]interface{}, key string, def float64) (float64, error) {
	raw, ok := cmd[key]
	if !ok {
		return def, nil
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, errors.Errorf("%s value must be a number but is type %T", key, raw)
	}
	return v, nil
}

// requiredFloatArg returns cmd[key] as a float64 and fails when the key is absent.
func requiredFloatArg(cmd map[string]interface{}, key string) (float64, error) {
	if _, ok := cmd[key]; !ok {
		return 0, errors.Errorf("%s must be set to a number", key)
	}
	return floatArg(cmd, key, 0)
}

// boolArg returns cmd[key] as a bool and whether it was present.
func boolArg(cmd map[string]interface{}, key string) (bool, bool, error) {
	raw, ok := cmd[key]
	if !ok {
		return false, false, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, true, errors.Errorf("%s value must be a boolean", key)
	}
	return v, true, nil
}

func poseMap(p geometry.Pose) map[string]interface{} {
	return map[string]interface{}{"x": p.X, "y": p.Y, "theta": p.Heading}
}

// DoCommand executes commands beyond the Base interface: pose and heading resets, telemetry,
// and drive tuning.
func (b *swerveBase) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd["command"]
	if !ok {
		return nil, errors.New("missing 'command' value")
	}
	switch name {
	case "reset_pose":
		x, err := floatArg(cmd, "x", 0)
		if err != nil {
			return nil, err
		}
		y, err := floatArg(cmd, "y", 0)
		if err != nil {
			return nil, err
		}
		theta, err := floatArg(cmd, "theta", 0)
		if err != nil {
			return nil, err
		}
		pose, err := b.resetPose(ctx, func(geometry.Pose) geometry.Pose {
			return geometry.NewPose(x, y, theta)
		})
		if err != nil {
			return nil, err
		}
		return poseMap(pose), nil

	case "reset_heading":
		theta, err := floatArg(cmd, "theta", 0)
		if err != nil {
			return nil, err
		}
		pose, err := b.resetPose(ctx, func(current geometry.Pose) geometry.Pose {
			return geometry.NewPose(current.X, current.Y, theta)
		})
		if err != nil {
			return nil, err
		}
		return poseMap(pose), nil

	case "update_keep_angle":
		b.mu.Lock()
		defer b.mu.Unlock()
		b.drive.ForceUpdateKeepAngle(b.lastSnap)
		return map[string]interface{}{"keep_angle": b.drive.Telemetry().LockedHeading}, nil

	case "get_pose":
		return poseMap(b.pose()), nil

	case "get_telemetry":
		return b.telemetry()

	case "set_speed_scale":
		scale, err := requiredFloatArg(cmd, "factor")
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.drive.SetSpeedScale(scale); err != nil {
			return nil, err
		}
		return map[string]interface{}{"return": fmt.Sprintf("set_speed_scale command processed: %f", scale)}, nil

	case "change_slew_rate":
		translation, err := requiredFloatArg(cmd, "translation")
		if err != nil {
			return nil, err
		}
		rotation, err := requiredFloatArg(cmd, "rotation")
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.drive.ChangeSlewRate(translation, rotation); err != nil {
			return nil, err
		}
		return map[string]interface{}{"return": "change_slew_rate command processed"}, nil

	case "set_brake":
		brake, ok, err := boolArg(cmd, "brake")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New("brake must be set and a boolean value")
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, m := range b.hw.modules {
			m.SetBrakeMode(brake)
		}
		return map[string]interface{}{"return": fmt.Sprintf("set_brake command processed: %t", brake)}, nil

	case "set_drive_mode":
		fieldRelative, hasFieldRelative, err := boolArg(cmd, "field_relative")
		if err != nil {
			return nil, err
		}
		keepAngle, hasKeepAngle, err := boolArg(cmd, "keep_angle")
		if err != nil {
			return nil, err
		}
		if !hasFieldRelative && !hasKeepAngle {
			return nil, errors.New("set at least one of field_relative and keep_angle")
		}
		running := b.opMgr.OpRunning()
		b.mu.Lock()
		defer b.mu.Unlock()
		if hasFieldRelative {
			b.fieldRelative = fieldRelative
		}
		if hasKeepAngle {
			b.keepAngle = keepAngle
		}
		if !running {
			b.cmd.FieldRelative, b.cmd.KeepAngle = b.fieldRelative, b.keepAngle
		}
		return map[string]interface{}{"field_relative": b.fieldRelative, "keep_angle": b.keepAngle}, nil

	default:
		return nil, fmt.Errorf("no such command: %s", name)
	}
}

// resetPose re-zeroes the heading source on the new heading and moves the pose estimate. next
// maps the current pose to the new one. Stale module data fails the reset before the heading
// source is touched.
func (b *swerveBase) resetPose(ctx context.Context, next func(geometry.Pose) geometry.Pose) (geometry.Pose, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.hw.fresh != nil && !b.hw.fresh(now) {
		return geometry.Pose{}, errStaleTelemetry
	}
	pose := next(b.drive.Pose())
	if err := b.hw.heading.Reset(ctx); err != nil {
		return geometry.Pose{}, errors.Wrap(err, "resetting heading")
	}
	b.hw.heading.SetAngleAdjustment(pose.Heading)

	snap, err := b.readSnapshot(ctx, now)
	if err != nil {
		// The heading source now reads pose.Heading, so the drivetrain must follow it.
		b.logger.CWarnw(ctx, "sensor read failed after heading reset, rebasing on last snapshot", "error", err)
		snap = b.lastSnap
		snap.Heading = pose.Heading
	}
	if err := b.drive.ResetPose(pose, snap); err != nil {
		return geometry.Pose{}, err
	}
	b.lastSnap = snap
	return b.drive.Pose(), nil
}

// telemetry flattens the drivetrain telemetry into the map form DoCommand returns.
func (b *swerveBase) telemetry() (map[string]interface{}, error) {
	b.mu.Lock()
	t := b.drive.Telemetry()
	active, misses := b.active, b.misses
	b.mu.Unlock()

	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	out["active"] = active
	out["sensor_misses"] = misses
	out["moving"] = b.isMoving.Load()
	return out, nil
}
