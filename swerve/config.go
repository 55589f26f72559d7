package swerve

import (
	"github.com/pkg/errors"
	"go.viam.com/rdk/resource"

	"swervebase/drivetrain"
)

// Model is the swerve drive base model.
var Model = resource.NewModel("swervebase", "base", "swerve")

const (
	defaultCANChannel      = "can0"
	defaultSensorTimeoutMs = 100
)

// Config describes the configuration of a swerve base.
type Config struct {
	Drivetrain drivetrain.Config `json:"drivetrain"`

	// MovementSensor supplies the heading. Required unless Simulate is set.
	MovementSensor string `json:"movement_sensor,omitempty"`

	CANChannel      string `json:"can_channel,omitempty"`
	CANBaseID       uint32 `json:"can_base_id,omitempty"`
	SensorTimeoutMs int    `json:"sensor_timeout_ms,omitempty"`

	Simulate bool `json:"simulate,omitempty"`

	// Initial drive mode; both can be changed with the set_drive_mode command.
	FieldRelative bool `json:"field_relative,omitempty"`
	KeepAngle     bool `json:"keep_angle,omitempty"`

	WheelCircumferenceMeters float64 `json:"wheel_circumference_meters,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) ([]string, error) {
	var deps []string
	if cfg.MovementSensor != "" {
		deps = append(deps, cfg.MovementSensor)
	} else if !cfg.Simulate {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "movement_sensor")
	}
	if len(cfg.Drivetrain.Modules) == 0 {
		return nil, resource.NewConfigValidationFieldRequiredError(path, "drivetrain.modules")
	}
	if cfg.SensorTimeoutMs < 0 {
		return nil, errors.New("sensor_timeout_ms cannot be negative")
	}
	if cfg.WheelCircumferenceMeters < 0 {
		return nil, errors.New("wheel_circumference_meters cannot be negative")
	}
	if err := cfg.Drivetrain.WithDefaults().Validate(); err != nil {
		return nil, resource.NewConfigValidationError(path, err)
	}
	return deps, nil
}
