//go:build !linux

package swerve

import (
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

func newCANHardware(*Config, HeadingSource, logging.Logger) (hardware, error) {
	return hardware{}, errors.New("CAN motor control requires linux; set simulate to true")
}
