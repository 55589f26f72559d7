package headinghold

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Config holds the heading-hold gains, deadbands and settle windows.
type Config struct {
	Gains `yaml:",inline"`
	// RotationDeadband is the rotation command (rad/s) below which the driver is not rotating.
	RotationDeadband float64 `json:"rotation_deadband" yaml:"rotation_deadband"`
	// TranslationDeadband is the per-axis translation command (m/s) below which the driver is
	// not translating.
	TranslationDeadband float64 `json:"translation_deadband" yaml:"translation_deadband"`
	RotationSettleSec   float64 `json:"rotation_settle_sec" yaml:"rotation_settle_sec"`
	DriveSettleSec      float64 `json:"drive_settle_sec" yaml:"drive_settle_sec"`
}

// Default values for unset fields.
const (
	DefaultKP                  = 0.5
	DefaultRotationDeadband    = 0.1
	DefaultTranslationDeadband = 0.05
	DefaultSettleSec           = 0.25
)

// WithDefaults returns a copy with zero fields replaced by the defaults. Integral and derivative
// gains stay at zero unless set.
func (c Config) WithDefaults() Config {
	if c.KP == 0 {
		c.KP = DefaultKP
	}
	if c.RotationDeadband == 0 {
		c.RotationDeadband = DefaultRotationDeadband
	}
	if c.TranslationDeadband == 0 {
		c.TranslationDeadband = DefaultTranslationDeadband
	}
	if c.RotationSettleSec == 0 {
		c.RotationSettleSec = DefaultSettleSec
	}
	if c.DriveSettleSec == 0 {
		c.DriveSettleSec = DefaultSettleSec
	}
	return c
}

// Validate rejects negative values.
func (c Config) Validate() error {
	switch {
	case c.RotationDeadband < 0:
		return errors.New("rotation_deadband cannot be negative")
	case c.TranslationDeadband < 0:
		return errors.New("translation_deadband cannot be negative")
	case c.RotationSettleSec < 0:
		return errors.New("rotation_settle_sec cannot be negative")
	case c.DriveSettleSec < 0:
		return errors.New("drive_settle_sec cannot be negative")
	}
	return nil
}

// Controller decides each cycle whether to pass the rotation command through or to replace it
// with a correction toward the locked heading.
//
// While the driver is rotating, and for RotationSettleSec afterwards, the lock follows the
// measured heading. Once that window has passed, a rotation command inside the deadband is
// replaced by the PID output as long as the driver translated within the last DriveSettleSec.
type Controller struct {
	cfg Config
	pid *PID

	started    bool
	keepAngle  float64
	lastRot    time.Time
	lastDrive  time.Time
	lastUpdate time.Time
	holding    bool
}

// New returns a controller. The lock is taken from the first heading passed to Update.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, pid: NewPID(cfg.Gains)}
}

// Update returns the rotation command to use this cycle.
func (c *Controller) Update(vx, vy, omega, heading float64, now time.Time) float64 {
	if !c.started {
		c.started = true
		c.keepAngle = heading
		c.lastRot = now
		c.lastDrive = now
		c.lastUpdate = now
	}
	dt := now.Sub(c.lastUpdate).Seconds()
	c.lastUpdate = now

	rotating := math.Abs(omega) >= c.cfg.RotationDeadband
	if rotating {
		c.lastRot = now
	}
	if math.Abs(vx) >= c.cfg.TranslationDeadband || math.Abs(vy) >= c.cfg.TranslationDeadband {
		c.lastDrive = now
	}
	sinceRot := now.Sub(c.lastRot).Seconds()
	sinceDrive := now.Sub(c.lastDrive).Seconds()

	switch {
	case sinceRot < c.cfg.RotationSettleSec:
		c.keepAngle = heading
		c.setHolding(false)
		return omega
	case !rotating && sinceDrive < c.cfg.DriveSettleSec:
		c.setHolding(true)
		return c.pid.Calculate(heading, c.keepAngle, dt)
	default:
		c.setHolding(false)
		return omega
	}
}

func (c *Controller) setHolding(holding bool) {
	if holding && !c.holding {
		c.pid.Reset()
	}
	c.holding = holding
}

// ForceUpdateKeepAngle locks the current heading immediately, as after a pose reset.
func (c *Controller) ForceUpdateKeepAngle(heading float64) {
	c.keepAngle = heading
	c.pid.Reset()
}

// KeepAngle returns the locked heading.
func (c *Controller) KeepAngle() float64 {
	return c.keepAngle
}

// Holding reports whether the last update replaced the rotation command.
func (c *Controller) Holding() bool {
	return c.holding
}
