package drivetrain

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"swervebase/headinghold"
	"swervebase/swervemodule"
)

// Defaults for unset Config fields.
const (
	DefaultLoopPeriodSec          = 0.02
	DefaultTranslationRate        = 2.0
	DefaultRotationRate           = 12.0
	DefaultSecondOrderCoefficient = 0.045
	DefaultVoltageCompensation    = 12.0
	DefaultSteerEpsilon           = 1e-3
)

// ModuleConfig is the mounting offset of one module from the robot center, X forward and Y left,
// in meters.
type ModuleConfig struct {
	Name string  `json:"name" yaml:"name"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
}

// Config describes the drivetrain geometry, limits, and tuning.
type Config struct {
	Modules         []ModuleConfig `json:"modules" yaml:"modules"`
	MaxSpeed        float64        `json:"max_speed_mps" yaml:"max_speed_mps"`
	MaxAngularSpeed float64        `json:"max_angular_speed_rps" yaml:"max_angular_speed_rps"`
	LoopPeriodSec   float64        `json:"loop_period_sec,omitempty" yaml:"loop_period_sec,omitempty"`

	// Command slew limits, m/s per second and rad/s per second.
	TranslationRate float64 `json:"translation_rate,omitempty" yaml:"translation_rate,omitempty"`
	RotationRate    float64 `json:"rotation_rate,omitempty" yaml:"rotation_rate,omitempty"`

	SecondOrderCoefficient float64 `json:"second_order_coefficient,omitempty" yaml:"second_order_coefficient,omitempty"`
	DisableSecondOrder     bool    `json:"disable_second_order,omitempty" yaml:"disable_second_order,omitempty"`
	Discretize             bool    `json:"discretize,omitempty" yaml:"discretize,omitempty"`

	Drive        swervemodule.Gains `json:"drive" yaml:"drive"`
	SteerEpsilon float64            `json:"steer_epsilon,omitempty" yaml:"steer_epsilon,omitempty"`

	KeepAngle headinghold.Config `json:"keep_angle" yaml:"keep_angle"`
}

// WithDefaults returns a copy with unset fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.LoopPeriodSec == 0 {
		cfg.LoopPeriodSec = DefaultLoopPeriodSec
	}
	if cfg.TranslationRate == 0 {
		cfg.TranslationRate = DefaultTranslationRate
	}
	if cfg.RotationRate == 0 {
		cfg.RotationRate = DefaultRotationRate
	}
	if cfg.SecondOrderCoefficient == 0 {
		cfg.SecondOrderCoefficient = DefaultSecondOrderCoefficient
	}
	if cfg.Drive.VoltageCompensation == 0 {
		cfg.Drive.VoltageCompensation = DefaultVoltageCompensation
	}
	if cfg.SteerEpsilon == 0 {
		cfg.SteerEpsilon = DefaultSteerEpsilon
	}
	cfg.KeepAngle = cfg.KeepAngle.WithDefaults()
	return cfg
}

// Validate checks the configuration. Geometry that cannot be inverted is rejected when the
// drivetrain is built.
func (cfg Config) Validate() error {
	if len(cfg.Modules) < 2 {
		return errors.Errorf("need at least 2 modules, got %d", len(cfg.Modules))
	}
	names := map[string]bool{}
	for i, m := range cfg.Modules {
		if m.Name == "" {
			continue
		}
		if names[m.Name] {
			return errors.Errorf("module %d: duplicate name %q", i, m.Name)
		}
		names[m.Name] = true
	}
	if cfg.MaxSpeed <= 0 {
		return errors.New("max_speed_mps must be positive")
	}
	if cfg.MaxAngularSpeed <= 0 {
		return errors.New("max_angular_speed_rps must be positive")
	}
	if cfg.LoopPeriodSec < 0 {
		return errors.New("loop_period_sec cannot be negative")
	}
	if cfg.TranslationRate < 0 || cfg.RotationRate < 0 {
		return errors.New("slew rates cannot be negative")
	}
	if cfg.SteerEpsilon < 0 {
		return errors.New("steer_epsilon cannot be negative")
	}
	if cfg.Drive.VoltageCompensation < 0 {
		return errors.New("voltage_compensation cannot be negative")
	}
	return errors.Wrap(cfg.KeepAngle.Validate(), "keep_angle")
}

// Offsets returns the module mounting offsets.
func (cfg Config) Offsets() []r2.Point {
	offsets := make([]r2.Point, len(cfg.Modules))
	for i, m := range cfg.Modules {
		offsets[i] = r2.Point{X: m.X, Y: m.Y}
	}
	return offsets
}

// ModuleName returns the configured name of module i, or a positional name.
func (cfg Config) ModuleName(i int) string {
	if i < len(cfg.Modules) && cfg.Modules[i].Name != "" {
		return cfg.Modules[i].Name
	}
	return fmt.Sprintf("module%d", i)
}

// Square returns four modules at the corners of a square with the given side length, ordered
// front left, front right, back left, back right.
func Square(side float64) []ModuleConfig {
	h := side / 2
	return []ModuleConfig{
		{Name: "front_left", X: h, Y: h},
		{Name: "front_right", X: h, Y: -h},
		{Name: "back_left", X: -h, Y: h},
		{Name: "back_right", X: -h, Y: -h},
	}
}
