package drone

import (
	"context"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	gcserrors "HumaGCS/internal/errors"
)

// SendCommandLong sends a COMMAND_LONG to the vehicle. It doesn't wait for
// COMMAND_ACK; an error means the message never left.
func (d *Drone) SendCommandLong(cmd common.MAV_CMD, params [7]float32) error {
	l, err := d.currentLink()
	if err != nil {
		return &gcserrors.CommandError{Command: cmd.String(), Err: err}
	}

	msg := &common.MessageCommandLong{
		TargetSystem:    l.TargetSystem(),
		TargetComponent: l.TargetComponent(),
		Command:         cmd,
		Confirmation:    0,
		Param1:          params[0],
		Param2:          params[1],
		Param3:          params[2],
		Param4:          params[3],
		Param5:          params[4],
		Param6:          params[5],
		Param7:          params[6],
	}

	if err := l.Send(msg); err != nil {
		d.logger.Error("command send failed", "command", cmd.String(), "error", err)
		return &gcserrors.CommandError{Command: cmd.String(), Err: gcserrors.ErrSendFailed, Cause: err}
	}

	d.logger.Debug("command sent", "command", cmd.String())
	return nil
}

// ArmDisarm requests the armed state. Confirmation is left to WaitArmed.
func (d *Drone) ArmDisarm(arm bool) error {
	var p1 float32 // 1 to arm, 0 to disarm
	if arm {
		p1 = 1
	}

	d.logger.Info("arm request", "arm", arm)
	return d.SendCommandLong(common.MAV_CMD_COMPONENT_ARM_DISARM, [7]float32{p1})
}

// requestMode resolves name for the connected vehicle type and sends DO_SET_MODE.
func (d *Drone) requestMode(name string) (string, error) {
	name = strings.ToUpper(strings.TrimSpace(name))

	vehicle := d.store.snapshot().VehicleType
	mode, ok := ModeNumber(vehicle, name)
	if !ok {
		return name, &gcserrors.CommandError{Command: "SET_MODE " + name, Err: gcserrors.ErrUnknownMode}
	}

	d.logger.Info("mode request", "mode", name, "number", uint32(mode))
	err := d.SendCommandLong(common.MAV_CMD_DO_SET_MODE, [7]float32{
		float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED),
		mode.float32(),
	})
	return name, err
}

// SetMode switches flight mode and waits until a heartbeat reports it. A
// COMMAND_ACK rejecting DO_SET_MODE fails immediately.
func (d *Drone) SetMode(name string) error {
	frames, unsubscribe := d.bus.subscribe()
	defer unsubscribe()

	name, err := d.requestMode(name)
	if err != nil {
		return err
	}

	timer := time.NewTimer(d.timeouts.Mode)
	defer timer.Stop()

	for {
		select {
		case f := <-frames:
			switch m := f.Message.(type) {
			case *common.MessageHeartbeat:
				if ModeName(m.Type, m.CustomMode) == name {
					d.logger.Info("mode changed", "mode", name)
					return nil
				}
			case *common.MessageCommandAck:
				if m.Command != common.MAV_CMD_DO_SET_MODE {
					continue
				}
				if m.Result != common.MAV_RESULT_ACCEPTED && m.Result != common.MAV_RESULT_IN_PROGRESS {
					d.logger.Warn("mode rejected", "mode", name, "result", m.Result.String())
					return &gcserrors.CommandError{Command: "SET_MODE " + name, Err: gcserrors.ErrCommandRejected}
				}
			}
		case <-timer.C:
			d.logger.Warn("mode change not confirmed", "mode", name, "timeout", d.timeouts.Mode)
			return &gcserrors.CommandError{Command: "SET_MODE " + name, Err: gcserrors.ErrModeTimeout}
		}
	}
}

// awaitMode checks on each of attempts heartbeats (or interval) whether the
// vehicle reports name.
func (d *Drone) awaitMode(ctx context.Context, name string, attempts int, interval time.Duration) error {
	frames, unsubscribe := d.bus.subscribe()
	defer unsubscribe()

	for i := 0; i < attempts; i++ {
		if d.store.snapshot().FlightMode == name {
			return nil
		}

		timer := time.NewTimer(interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case f := <-frames:
				if _, ok := f.Message.(*common.MessageHeartbeat); ok {
					break wait
				}
			case <-timer.C:
				break wait
			}
		}
		timer.Stop()

		d.logger.Debug("waiting for mode", "mode", name, "attempt", i+1)
	}

	if d.store.snapshot().FlightMode == name {
		return nil
	}
	return &gcserrors.CommandError{Command: "SET_MODE " + name, Err: gcserrors.ErrModeTimeout}
}

// WaitArmed blocks until the heartbeat-reported armed state equals want.
func (d *Drone) WaitArmed(ctx context.Context, want bool, timeout time.Duration) error {
	frames, unsubscribe := d.bus.subscribe()
	defer unsubscribe()

	if d.store.snapshot().Armed == want {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-frames:
			if _, ok := f.Message.(*common.MessageHeartbeat); ok && d.store.snapshot().Armed == want {
				return nil
			}
		case <-timer.C:
			return &gcserrors.CommandError{Command: common.MAV_CMD_COMPONENT_ARM_DISARM.String(), Err: gcserrors.ErrArmTimeout}
		}
	}
}

// WaitPosition waits for a fresh GLOBAL_POSITION_INT, making up to attempts
// waits of each. The returned snapshot includes it.
func (d *Drone) WaitPosition(ctx context.Context, attempts int, each time.Duration) (Telemetry, error) {
	frames, unsubscribe := d.bus.subscribe()
	defer unsubscribe()

	for i := 0; i < attempts; i++ {
		timer := time.NewTimer(each)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return Telemetry{}, ctx.Err()
			case f := <-frames:
				if _, ok := f.Message.(*common.MessageGlobalPositionInt); ok {
					timer.Stop()
					return d.store.snapshot(), nil
				}
			case <-timer.C:
				break wait
			}
		}
		d.logger.Warn("no position yet", "attempt", i+1, "of", attempts)
	}

	return Telemetry{}, gcserrors.ErrPositionTimeout
}

// ReturnToLaunch sends NAV_RETURN_TO_LAUNCH.
func (d *Drone) ReturnToLaunch() error {
	return d.SendCommandLong(common.MAV_CMD_NAV_RETURN_TO_LAUNCH, [7]float32{})
}

// Land sends NAV_LAND at the current position.
func (d *Drone) Land() error {
	return d.SendCommandLong(common.MAV_CMD_NAV_LAND, [7]float32{})
}

// Takeoff sends NAV_TAKEOFF to alt metres above home.
func (d *Drone) Takeoff(alt float32) error {
	if err := d.checkAltitude(alt); err != nil {
		return &gcserrors.CommandError{Command: common.MAV_CMD_NAV_TAKEOFF.String(), Err: err}
	}
	return d.SendCommandLong(common.MAV_CMD_NAV_TAKEOFF, [7]float32{6: alt})
}
