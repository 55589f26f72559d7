//go:build linux

package canmotor

import (
	"context"
	"sync"
	"time"

	"github.com/go-daq/canbus"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	viamutils "go.viam.com/utils"
	"golang.org/x/sys/unix"

	"swervebase/swervemodule"
)

// PublishPeriod is the interval at which latched commands are re-sent.
const PublishPeriod = 10 * time.Millisecond

type moduleState struct {
	drive driveCommand
	steer steerCommand

	reading   swervemodule.Reading
	driveSeen time.Time
	steerSeen time.Time
}

// Bus owns the transmit and receive sockets for a set of modules on one CAN channel.
type Bus struct {
	logger logging.Logger
	baseID uint32

	mu      sync.RWMutex
	modules []*moduleState

	tx, rx                  *canbus.Socket
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

func newBus(baseID uint32, numModules int, logger logging.Logger) (*Bus, error) {
	if numModules < 1 || numModules > MaxModules {
		return nil, errors.Errorf("can address 1 to %d modules, got %d", MaxModules, numModules)
	}
	b := &Bus{logger: logger, baseID: baseID, modules: make([]*moduleState, numModules)}
	for i := range b.modules {
		b.modules[i] = &moduleState{
			drive: driveCommand{id: baseID + driveCommandOffset + uint32(i)},
			steer: steerCommand{id: baseID + steerCommandOffset + uint32(i)},
		}
	}
	return b, nil
}

// Open binds to channel (for example "can0") and starts the publish and receive loops. All
// motors start disabled.
func Open(channel string, baseID uint32, numModules int, logger logging.Logger) (*Bus, error) {
	b, err := newBus(baseID, numModules, logger)
	if err != nil {
		return nil, err
	}

	b.tx, err = canbus.New()
	if err != nil {
		return nil, err
	}
	if err := b.tx.Bind(channel); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "binding %s", channel), b.tx.Close())
	}

	b.rx, err = canbus.New()
	if err != nil {
		return nil, multierr.Combine(err, b.tx.Close())
	}
	filters := make([]unix.CanFilter, 0, 2*numModules)
	for i := 0; i < numModules; i++ {
		filters = append(filters,
			unix.CanFilter{Id: baseID + driveTelemetryOffset + uint32(i), Mask: unix.CAN_SFF_MASK},
			unix.CanFilter{Id: baseID + steerTelemetryOffset + uint32(i), Mask: unix.CAN_SFF_MASK},
		)
	}
	if err := b.rx.SetFilters(filters); err != nil {
		return nil, multierr.Combine(err, b.tx.Close(), b.rx.Close())
	}
	if err := b.rx.Bind(channel); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "binding %s", channel), b.tx.Close(), b.rx.Close())
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.activeBackgroundWorkers.Add(2)
	viamutils.ManagedGo(func() {
		b.publishThread(cancelCtx)
	}, b.activeBackgroundWorkers.Done)
	viamutils.ManagedGo(func() {
		b.receiveThread(cancelCtx)
	}, b.activeBackgroundWorkers.Done)
	return b, nil
}

// NumModules returns the number of addressed modules.
func (b *Bus) NumModules() int {
	return len(b.modules)
}

// Motor returns the actuator and sensor of module i.
func (b *Bus) Motor(i int) *Motor {
	return &Motor{bus: b, index: i}
}

// frames encodes the latched commands of every module.
func (b *Bus) frames() []canbus.Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]canbus.Frame, 0, 2*len(b.modules))
	for _, m := range b.modules {
		out = append(out, m.drive.toFrame(), m.steer.toFrame())
	}
	return out
}

// publishThread sends the latched commands every PublishPeriod.
func (b *Bus) publishThread(ctx context.Context) {
	ticker := time.NewTicker(PublishPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, frame := range b.frames() {
			if _, err := b.tx.Send(frame); err != nil {
				b.logger.Errorw("motor command send error", "id", frame.ID, "error", err)
			}
		}
	}
}

// receiveThread decodes telemetry frames until the receive socket is closed.
func (b *Bus) receiveThread(ctx context.Context) {
	for {
		frame, err := b.rx.Recv()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			b.logger.Errorw("CAN Rx error", "error", err)
			if !viamutils.SelectContextOrWait(ctx, PublishPeriod) {
				return
			}
			continue
		}
		if err := b.handleFrame(frame, time.Now()); err != nil {
			b.logger.Debugw("dropping telemetry frame", "id", frame.ID, "error", err)
		}
	}
}

// handleFrame stores the telemetry carried by frame.
func (b *Bus) handleFrame(frame canbus.Frame, now time.Time) error {
	var kind uint32
	switch id := frame.ID - b.baseID; {
	case frame.ID < b.baseID:
		return errors.New("frame below base id")
	case id >= driveTelemetryOffset && id < driveTelemetryOffset+uint32(len(b.modules)):
		kind = driveTelemetryOffset
	case id >= steerTelemetryOffset && id < steerTelemetryOffset+uint32(len(b.modules)):
		kind = steerTelemetryOffset
	default:
		return errors.New("not a telemetry frame")
	}
	index := int(frame.ID - b.baseID - kind)

	if kind == driveTelemetryOffset {
		position, err := signalDrivePosition.Extract(frame.Data)
		if err != nil {
			return err
		}
		velocity, err := signalDriveVelocity.Extract(frame.Data)
		if err != nil {
			return err
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		m := b.modules[index]
		m.reading.DrivePosition = position
		m.reading.DriveVelocity = velocity
		m.driveSeen = now
		return nil
	}

	steer, err := signalSteerPosition.Extract(frame.Data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.modules[index]
	m.reading.SteerAngle = steer
	m.steerSeen = now
	return nil
}

// Fresh reports whether every module has reported both drive and steer telemetry within maxAge
// of now.
func (b *Bus) Fresh(now time.Time, maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, m := range b.modules {
		if now.Sub(m.driveSeen) > maxAge || now.Sub(m.steerSeen) > maxAge {
			return false
		}
	}
	return true
}

// Close disables every motor, sends the disabled frames once, and stops both loops.
func (b *Bus) Close() error {
	for i := range b.modules {
		b.Motor(i).Stop()
	}
	var err error
	if b.tx != nil {
		for _, frame := range b.frames() {
			if _, sendErr := b.tx.Send(frame); sendErr != nil {
				err = multierr.Append(err, sendErr)
			}
		}
	}
	if b.cancel != nil {
		b.cancel()
	}
	if b.rx != nil {
		err = multierr.Append(err, b.rx.Close())
	}
	b.activeBackgroundWorkers.Wait()
	if b.tx != nil {
		err = multierr.Append(err, b.tx.Close())
	}
	return err
}

// Motor is one module's pair of motor controllers. It implements swervemodule.Actuator and
// swervemodule.Sensor; setters only latch values for the publish loop and never block on I/O.
type Motor struct {
	bus   *Bus
	index int
}

func (m *Motor) state() *moduleState {
	return m.bus.modules[m.index]
}

// SetDriveVelocity implements swervemodule.Actuator.
func (m *Motor) SetDriveVelocity(velocity, feedforwardVolts float64) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	s := m.state()
	s.drive.velocity = velocity
	s.drive.feedforward = feedforwardVolts
	s.drive.enabled = true
}

// SetSteerPosition implements swervemodule.Actuator.
func (m *Motor) SetSteerPosition(position float64) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	s := m.state()
	s.steer.position = position
	s.steer.enabled = true
}

// Stop implements swervemodule.Actuator.
func (m *Motor) Stop() {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	s := m.state()
	s.drive.enabled = false
	s.steer.enabled = false
}

// SetBrakeMode implements swervemodule.Actuator.
func (m *Motor) SetBrakeMode(brake bool) {
	m.bus.mu.Lock()
	defer m.bus.mu.Unlock()
	m.state().drive.brake = brake
}

// DriveVelocity implements swervemodule.Sensor.
func (m *Motor) DriveVelocity() float64 {
	m.bus.mu.RLock()
	defer m.bus.mu.RUnlock()
	return m.state().reading.DriveVelocity
}

// DrivePosition implements swervemodule.Sensor.
func (m *Motor) DrivePosition() float64 {
	m.bus.mu.RLock()
	defer m.bus.mu.RUnlock()
	return m.state().reading.DrivePosition
}

// SteerAngle implements swervemodule.Sensor.
func (m *Motor) SteerAngle() float64 {
	m.bus.mu.RLock()
	defer m.bus.mu.RUnlock()
	return m.state().reading.SteerAngle
}
