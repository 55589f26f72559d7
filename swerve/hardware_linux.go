//go:build linux

package swerve

import (
	"time"

	"go.viam.com/rdk/logging"

	"swervebase/canmotor"
	"swervebase/swervemodule"
)

func newCANHardware(cfg *Config, heading HeadingSource, logger logging.Logger) (hardware, error) {
	dt := cfg.Drivetrain.WithDefaults()
	channel := cfg.CANChannel
	if channel == "" {
		channel = defaultCANChannel
	}
	baseID := cfg.CANBaseID
	if baseID == 0 {
		baseID = canmotor.DefaultBaseID
	}
	timeoutMs := cfg.SensorTimeoutMs
	if timeoutMs == 0 {
		timeoutMs = defaultSensorTimeoutMs
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	bus, err := canmotor.Open(channel, baseID, len(dt.Modules), logger)
	if err != nil {
		return hardware{}, err
	}
	modules := make([]*swervemodule.Module, bus.NumModules())
	for i := range modules {
		motor := bus.Motor(i)
		modules[i] = swervemodule.NewModule(dt.ModuleName(i), motor, motor)
	}
	return hardware{
		modules: modules,
		heading: heading,
		fresh: func(now time.Time) bool {
			return bus.Fresh(now, timeout)
		},
		close: bus.Close,
	}, nil
}
