// Package odometry tracks the robot pose from module travel and an absolute heading sensor.
package odometry

import (
	"github.com/pkg/errors"

	"swervebase/anglemath"
	"swervebase/geometry"
	"swervebase/kinematics"
)

// Estimator integrates per-cycle module displacement into a field-relative pose. Rotation comes
// from the heading sensor rather than from integrating the kinematic twist, so long-run heading
// error is bounded by the sensor's own drift.
//
// An Estimator is owned by the control loop and is not safe for concurrent use; Pose returns a copy.
type Estimator struct {
	kin *kinematics.SwerveKinematics

	pose          geometry.Pose
	previous      []kinematics.ModulePosition
	previousAngle float64
	headingOffset float64
	tracking      bool
}

// New returns an estimator fixed at initial, with the module accumulators rebased to positions.
func New(
	kin *kinematics.SwerveKinematics,
	heading float64,
	positions []kinematics.ModulePosition,
	initial geometry.Pose,
) (*Estimator, error) {
	if kin == nil {
		return nil, errors.New("odometry requires kinematics")
	}
	e := &Estimator{kin: kin, previous: make([]kinematics.ModulePosition, kin.NumModules())}
	if err := e.Reset(initial, heading, positions); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset fixes the pose at pose, records heading as the sensor reading that corresponds to
// pose.Heading, and rebases the module accumulators so that the next update starts from zero
// displacement. It may be called at any time.
func (e *Estimator) Reset(pose geometry.Pose, heading float64, positions []kinematics.ModulePosition) error {
	if len(positions) != len(e.previous) {
		return errors.Errorf("odometry tracks %d modules, got %d positions", len(e.previous), len(positions))
	}
	e.pose = geometry.NewPose(pose.X, pose.Y, pose.Heading)
	e.headingOffset = e.pose.Heading - heading
	e.previousAngle = e.pose.Heading
	copy(e.previous, positions)
	e.tracking = false
	return nil
}

// Update advances the pose by the module travel since the previous call and returns the new pose.
// Each wheel's displacement is taken along the angle it reports now. A position list of the wrong
// length leaves the pose untouched.
func (e *Estimator) Update(heading float64, positions []kinematics.ModulePosition) geometry.Pose {
	if len(positions) != len(e.previous) {
		return e.pose
	}

	angle := anglemath.Normalize(heading + e.headingOffset)
	deltas := make([]kinematics.ModulePosition, len(positions))
	for i, p := range positions {
		deltas[i] = kinematics.ModulePosition{Distance: p.Distance - e.previous[i].Distance, Angle: p.Angle}
	}

	twist := e.kin.ToTwist(deltas...)
	twist.DTheta = anglemath.ShortestDelta(angle, e.previousAngle)

	moved := e.pose.Exp(twist)
	e.pose = geometry.NewPose(moved.X, moved.Y, angle)
	e.previousAngle = angle
	copy(e.previous, positions)
	e.tracking = true
	return e.pose
}

// Pose returns the current pose estimate.
func (e *Estimator) Pose() geometry.Pose {
	return e.pose
}

// Tracking reports whether the pose has been advanced since construction or the last reset.
func (e *Estimator) Tracking() bool {
	return e.tracking
}
