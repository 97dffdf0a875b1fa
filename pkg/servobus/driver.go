// Package servobus drives the gripper from Feetech STS serial bus servos for
// bench work. The servos only take position goals, so velocity commands are
// emulated by moving the goal ahead of the measured position and torque is
// estimated from how far the goal leads. The torque cap of a command is not
// enforced by the servo; its own stored torque limit applies.
package servobus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

// ErrNoServo is returned when a configured servo does not answer on its bus.
var ErrNoServo = errors.New("servo not found")

type channel struct {
	servoID int
	group   *feetech.ServoGroup
	enabled bool
	joint   joint

	mu *sync.Mutex // shared by every channel on the bus
}

// Driver is a robot.Driver over one or two serial buses.
type Driver struct {
	channels map[robot.ID]*channel
	buses    map[string]*feetech.Bus
	locks    map[string]*sync.Mutex
	now      func() time.Time
}

// Open connects to the leader and follower servos cfg names. Actuators that
// share a port share its bus.
func Open(ctx context.Context, cfg *robot.Config) (*Driver, error) {
	d := &Driver{
		channels: make(map[robot.ID]*channel),
		buses:    make(map[string]*feetech.Bus),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}

	for _, ac := range []robot.ActuatorConfig{cfg.Leader, cfg.Follower} {
		bus, err := d.bus(ac.Port, cfg.Driver.BaudRate)
		if err != nil {
			d.Close()
			return nil, err
		}
		servoID := ac.ServoID
		if servoID == 0 {
			servoID = int(ac.ID)
		}
		if err := probe(ctx, bus, servoID); err != nil {
			d.Close()
			return nil, fmt.Errorf("%s servo %d: %w", ac.Port, servoID, err)
		}
		d.channels[ac.ID] = &channel{
			servoID: servoID,
			group:   feetech.NewServoGroupByIDs(bus, servoID),
			mu:      d.locks[ac.Port],
		}
	}
	return d, nil
}

func (d *Driver) bus(port string, baud int) (*feetech.Bus, error) {
	if bus, ok := d.buses[port]; ok {
		return bus, nil
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus %s: %w", port, err)
	}
	d.buses[port] = bus
	d.locks[port] = new(sync.Mutex)
	return bus, nil
}

func probe(ctx context.Context, bus *feetech.Bus, servoID int) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	servos, err := bus.Scan(ctx, servoID, servoID)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if len(servos) == 0 {
		return ErrNoServo
	}
	return nil
}

// Close releases torque on every servo and closes the buses.
func (d *Driver) Close() error {
	var errs []error
	for _, ch := range d.channels {
		if err := ch.group.DisableAll(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	for port, bus := range d.buses {
		if err := bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus %s: %w", port, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) channel(id robot.ID) (*channel, error) {
	ch, ok := d.channels[id]
	if !ok {
		return nil, fmt.Errorf("actuator %d: %w", id, ErrNoServo)
	}
	return ch, nil
}

// read samples the servo position. ch.mu must be held.
func (d *Driver) read(ctx context.Context, ch *channel) (robot.Telemetry, error) {
	positions, err := ch.group.Positions(ctx)
	if err != nil {
		return robot.Telemetry{}, fmt.Errorf("read position: %w", err)
	}
	raw, ok := positions[ch.servoID]
	if !ok {
		return robot.Telemetry{}, fmt.Errorf("servo %d: %w", ch.servoID, ErrNoServo)
	}
	return ch.joint.observe(raw, d.now()), nil
}

func (d *Driver) Query(ctx context.Context, id robot.ID) (robot.Telemetry, error) {
	ch, err := d.channel(id)
	if err != nil {
		return robot.Telemetry{}, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return d.read(ctx, ch)
}

func (d *Driver) SetPosition(ctx context.Context, id robot.ID, cmd robot.Command) (robot.Telemetry, error) {
	ch, err := d.channel(id)
	if err != nil {
		return robot.Telemetry{}, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	t, err := d.read(ctx, ch)
	if err != nil {
		return robot.Telemetry{}, err
	}

	goal, drive := ch.joint.plan(cmd, d.now())
	if !drive {
		// Both axes free: let the operator move the servo by hand.
		return t, d.setEnabled(ctx, ch, false)
	}
	if err := d.setEnabled(ctx, ch, true); err != nil {
		return robot.Telemetry{}, err
	}
	if err := ch.group.SetPositions(ctx, feetech.PositionMap{ch.servoID: goal}); err != nil {
		return robot.Telemetry{}, fmt.Errorf("write position: %w", err)
	}
	return t, nil
}

func (d *Driver) SetStop(ctx context.Context, id robot.ID) error {
	ch, err := d.channel(id)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.joint.release()
	ch.enabled = true // force the disable to go out
	return d.setEnabled(ctx, ch, false)
}

func (d *Driver) SetAbsoluteReference(ctx context.Context, id robot.ID, value float64) error {
	ch, err := d.channel(id)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if _, err := d.read(ctx, ch); err != nil {
		return err
	}
	ch.joint.reference(value)
	return nil
}

func (d *Driver) setEnabled(ctx context.Context, ch *channel, on bool) error {
	if ch.enabled == on {
		return nil
	}
	var err error
	if on {
		err = ch.group.EnableAll(ctx)
	} else {
		err = ch.group.DisableAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("set torque enable %t: %w", on, err)
	}
	ch.enabled = on
	return nil
}

var _ robot.Driver = (*Driver)(nil)
