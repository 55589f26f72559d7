package swerve

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/movementsensor"

	"swervebase/anglemath"
)

// HeadingSource reports the robot heading in radians, counter-clockwise positive. Heading is
// the reading accumulated since the last Reset plus the angle adjustment.
type HeadingSource interface {
	Heading(ctx context.Context) (float64, error)
	Reset(ctx context.Context) error
	SetAngleAdjustment(angle float64)
}

// sensorHeading derives a heading from the yaw of a movement sensor's orientation.
type sensorHeading struct {
	ms movementsensor.MovementSensor

	mu         sync.Mutex
	zero       float64
	adjustment float64
}

func newSensorHeading(ms movementsensor.MovementSensor) *sensorHeading {
	return &sensorHeading{ms: ms}
}

func (h *sensorHeading) yaw(ctx context.Context) (float64, error) {
	o, err := h.ms.Orientation(ctx, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "reading orientation from %s", h.ms.Name().ShortName())
	}
	if o == nil {
		return 0, errors.Errorf("%s returned no orientation", h.ms.Name().ShortName())
	}
	return o.EulerAngles().Yaw, nil
}

func (h *sensorHeading) Heading(ctx context.Context) (float64, error) {
	yaw, err := h.yaw(ctx)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return anglemath.Normalize(yaw - h.zero + h.adjustment), nil
}

func (h *sensorHeading) Reset(ctx context.Context) error {
	yaw, err := h.yaw(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.zero = yaw
	return nil
}

func (h *sensorHeading) SetAngleAdjustment(angle float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adjustment = angle
}
