//go:build linux

package canmotor

import (
	"encoding/binary"
	"math"

	"github.com/go-daq/canbus"
)

// Offsets from the configured base ID. Module i uses offset+i.
const (
	DefaultBaseID uint32 = 0x300

	driveCommandOffset   uint32 = 0x10
	steerCommandOffset   uint32 = 0x20
	driveTelemetryOffset uint32 = 0x80
	steerTelemetryOffset uint32 = 0x90

	// MaxModules is the number of modules addressable from one base ID.
	MaxModules = 16
)

// Command payload scalars.
const (
	velocityScale    = 0.001 // m/s per count
	voltageScale     = 0.001 // V per count
	steerScale       = 1e-5  // rad per count
	drivePosScale    = 1e-4  // m per count
	modeDisabled     = 0x0
	modeClosedLoop   = 0x1
	brakeModeCoast   = 0x0
	brakeModeBraking = 0x1
)

var (
	signalDrivePosition = Signal{Scale: drivePosScale, Start: 0, Length: 32, LittleEndian: true, Signed: true}
	signalDriveVelocity = Signal{Scale: velocityScale, Start: 32, Length: 16, LittleEndian: true, Signed: true}
	signalSteerPosition = Signal{Scale: steerScale, Start: 0, Length: 32, LittleEndian: true, Signed: true}
)

func toInt16(value, scale float64) int16 {
	counts := math.Round(value / scale)
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, counts)))
}

func toInt32(value, scale float64) int32 {
	counts := math.Round(value / scale)
	return int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, counts)))
}

// driveCommand is the latched drive motor request of one module.
type driveCommand struct {
	id          uint32
	velocity    float64
	feedforward float64
	enabled     bool
	brake       bool
}

// toFrame converts the drive command to a canbus data frame.
func (cmd driveCommand) toFrame() canbus.Frame {
	frame := canbus.Frame{
		ID:   cmd.id,
		Data: make([]byte, 6),
		Kind: canbus.SFF,
	}
	mode, brake := byte(modeDisabled), byte(brakeModeCoast)
	if cmd.enabled {
		mode = modeClosedLoop
	}
	if cmd.brake {
		brake = brakeModeBraking
	}
	velocity, feedforward := cmd.velocity, cmd.feedforward
	if !cmd.enabled {
		velocity, feedforward = 0, 0
	}
	binary.LittleEndian.PutUint16(frame.Data[0:2], uint16(toInt16(velocity, velocityScale)))
	binary.LittleEndian.PutUint16(frame.Data[2:4], uint16(toInt16(feedforward, voltageScale)))
	frame.Data[4] = mode
	frame.Data[5] = brake
	return frame
}

// steerCommand is the latched steer motor request of one module.
type steerCommand struct {
	id       uint32
	position float64
	enabled  bool
}

// toFrame converts the steer command to a canbus data frame.
func (cmd steerCommand) toFrame() canbus.Frame {
	frame := canbus.Frame{
		ID:   cmd.id,
		Data: make([]byte, 5),
		Kind: canbus.SFF,
	}
	binary.LittleEndian.PutUint32(frame.Data[0:4], uint32(toInt32(cmd.position, steerScale)))
	if cmd.enabled {
		frame.Data[4] = modeClosedLoop
	}
	return frame
}
