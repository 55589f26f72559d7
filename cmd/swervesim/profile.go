package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"swervebase/drivetrain"
)

// Profile is a simulated robot and the commands to drive it with.
type Profile struct {
	Drivetrain drivetrain.Config `yaml:"drivetrain"`

	// SteerRate limits simulated steering in rad/s; zero steers instantly.
	SteerRate float64 `yaml:"steer_rate"`
	// GyroDrift is added to the simulated heading every second, in rad/s.
	GyroDrift float64 `yaml:"gyro_drift"`

	FieldRelative bool `yaml:"field_relative"`
	KeepAngle     bool `yaml:"keep_angle"`

	Steps []Step `yaml:"steps"`
}

// Step holds one command for a fixed time. Nil mode flags keep the previous mode.
type Step struct {
	Name        string  `yaml:"name"`
	DurationSec float64 `yaml:"duration_sec"`
	XSpeed      float64 `yaml:"x_speed"`
	YSpeed      float64 `yaml:"y_speed"`
	Rot         float64 `yaml:"rot"`

	FieldRelative *bool    `yaml:"field_relative"`
	KeepAngle     *bool    `yaml:"keep_angle"`
	SpeedScale    *float64 `yaml:"speed_scale"`

	ResetPose *ProfilePose `yaml:"reset_pose"`
}

// ProfilePose is a pose in meters and radians.
type ProfilePose struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta"`
}

// Validate checks the profile.
func (p *Profile) Validate() error {
	if err := p.Drivetrain.WithDefaults().Validate(); err != nil {
		return errors.Wrap(err, "drivetrain")
	}
	if p.SteerRate < 0 {
		return errors.New("steer_rate cannot be negative")
	}
	if len(p.Steps) == 0 {
		return errors.New("profile has no steps")
	}
	for i, s := range p.Steps {
		if s.DurationSec < 0 {
			return errors.Errorf("step %d: duration_sec cannot be negative", i)
		}
		if s.SpeedScale != nil && *s.SpeedScale < 0 {
			return errors.Errorf("step %d: speed_scale cannot be negative", i)
		}
	}
	return nil
}

func parseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to parse profile")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	return &p, nil
}

// loadProfile reads and validates the profile at path.
func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read profile %s", path)
	}
	return parseProfile(data)
}
