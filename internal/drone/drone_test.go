package drone

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	gcserrors "HumaGCS/internal/errors"
	"HumaGCS/internal/link"
	"HumaGCS/internal/link/linktest"
)

const testEndpoint = "udp:127.0.0.1:14550"

func testTimeouts() Timeouts {
	return Timeouts{
		Connect:            time.Second,
		Poll:               10 * time.Millisecond,
		Mode:               500 * time.Millisecond,
		Arm:                300 * time.Millisecond,
		Position:           200 * time.Millisecond,
		PositionAttempts:   3,
		AutoVerify:         50 * time.Millisecond,
		AutoVerifyAttempts: 10,
		ClearAck:           100 * time.Millisecond,
		MissionItem:        300 * time.Millisecond,
		MissionAck:         300 * time.Millisecond,
		Navigator:          10 * time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDrone(t *testing.T, open link.OpenFunc, opts ...Option) *Drone {
	t.Helper()

	opts = append([]Option{
		WithLogger(quietLogger()),
		WithTimeouts(testTimeouts()),
		WithLinkOptions(link.WithTransport(open)),
	}, opts...)

	d := NewDrone(opts...)
	if err := d.Connect(testEndpoint); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(d.Disconnect)
	return d
}

// staleOpen connects a vehicle that sends exactly one heartbeat.
func staleOpen(v *linktest.Vehicle) link.OpenFunc {
	v.HeartbeatPeriod = 0
	return func(conf gomavlib.NodeConf) (link.Transport, error) {
		tr, err := v.Open(conf)
		v.Emit(&common.MessageHeartbeat{
			Type:         v.Type,
			BaseMode:     common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED,
			SystemStatus: common.MAV_STATE_STANDBY,
		})
		return tr, err
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestConnectFoldsFirstHeartbeat(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, staleOpen(v))

	tm := d.Telemetry()
	if tm.VehicleType != common.MAV_TYPE_FIXED_WING {
		t.Errorf("VehicleType = %v", tm.VehicleType)
	}
	if tm.FlightMode != "MANUAL" {
		t.Errorf("FlightMode = %q, want MANUAL", tm.FlightMode)
	}
	if tm.LastHeartbeat.IsZero() {
		t.Errorf("LastHeartbeat not set")
	}
	if _, ok := d.HeartbeatAge(); !ok {
		t.Errorf("HeartbeatAge() not available after connect")
	}

	s := d.Status()
	if !s.Connected || s.SystemID != 1 || s.Endpoint != testEndpoint {
		t.Errorf("Status() = %+v", s)
	}
}

func TestConnectTwice(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, v.Open)

	if err := d.Connect(testEndpoint); !errors.Is(err, gcserrors.ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
	if v.Opened() != 1 {
		t.Errorf("transport opened %d times", v.Opened())
	}
}

func TestConnectNoHeartbeat(t *testing.T) {
	v := linktest.NewVehicle()
	v.HeartbeatPeriod = 0

	to := testTimeouts()
	to.Connect = 50 * time.Millisecond
	d := NewDrone(WithLogger(quietLogger()), WithTimeouts(to), WithLinkOptions(link.WithTransport(v.Open)))

	if err := d.Connect(testEndpoint); !errors.Is(err, gcserrors.ErrNoHeartbeat) {
		t.Fatalf("Connect() error = %v, want ErrNoHeartbeat", err)
	}
	if d.Connected() {
		t.Errorf("Connected() after failed connect")
	}
}

func TestDisconnectTwice(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, v.Open)

	d.Disconnect()
	d.Disconnect()

	if d.Connected() {
		t.Errorf("Connected() after Disconnect")
	}
	if !v.Closed() {
		t.Errorf("transport still open after Disconnect")
	}
	if err := d.ArmDisarm(true); !errors.Is(err, gcserrors.ErrNotConnected) {
		t.Errorf("ArmDisarm() after Disconnect error = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectWithinPollInterval(t *testing.T) {
	v := linktest.NewVehicle()

	to := testTimeouts()
	to.Poll = 100 * time.Millisecond
	d := NewDrone(WithLogger(quietLogger()), WithTimeouts(to), WithLinkOptions(link.WithTransport(staleOpen(v))))
	if err := d.Connect(testEndpoint); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// idle link: ingestion sits in a full poll wait
	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	d.Disconnect()
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Disconnect() took %v, want at most one poll interval", elapsed)
	}
	if !v.Closed() {
		t.Errorf("transport still open after Disconnect")
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, v.Open)

	d.Disconnect()
	if err := d.Connect(testEndpoint); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if v.Opened() != 2 {
		t.Errorf("transport opened %d times, want 2", v.Opened())
	}
}

func TestIngestionUpdatesTelemetry(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, v.Open)

	v.Emit(&common.MessageSysStatus{VoltageBattery: 12600, CurrentBattery: 1520, BatteryRemaining: 87})

	ok := eventually(t, time.Second, func() bool {
		tm := d.Telemetry()
		return tm.HasPosition() && tm.BatteryLevel == 87
	})
	if !ok {
		t.Fatalf("telemetry not updated: %+v", d.Telemetry())
	}

	tm := d.Telemetry()
	if tm.BatteryVoltage != 12.6 {
		t.Errorf("BatteryVoltage = %v, want 12.6", tm.BatteryVoltage)
	}
	if tm.Heading != 90 {
		t.Errorf("Heading = %v, want 90", tm.Heading)
	}
}

func TestIngestionIgnoresOtherSystems(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, staleOpen(v))

	v.SystemID = 42
	v.Emit(&common.MessageAttitude{Roll: 1})
	v.SystemID = 1
	v.Emit(&common.MessageAttitude{Roll: 0.25})

	if !eventually(t, time.Second, func() bool { return d.Telemetry().Roll != 0 }) {
		t.Fatalf("attitude never applied")
	}
	if got := d.Telemetry().Roll; got != 0.25 {
		t.Errorf("Roll = %v, want 0.25 from the connected system", got)
	}
}

func TestCompanionHeartbeatsDoNotOwnVehicleState(t *testing.T) {
	const companion = 191 // MAV_COMP_ID_ONBOARD_COMPUTER

	v := linktest.NewVehicle()
	v.Type = common.MAV_TYPE_QUADROTOR
	d := newTestDrone(t, staleOpen(v))

	frames, unsubscribe := d.Subscribe()
	defer unsubscribe()

	v.EmitFrom(companion, &common.MessageHeartbeat{
		Type:      common.MAV_TYPE_ONBOARD_CONTROLLER,
		Autopilot: common.MAV_AUTOPILOT_INVALID,
	})
	v.Emit(&common.MessageAttitude{Roll: 0.5})
	if !eventually(t, time.Second, func() bool { return d.Telemetry().Roll == 0.5 }) {
		t.Fatalf("autopilot attitude never applied")
	}

	tm := d.Telemetry()
	if tm.VehicleType != common.MAV_TYPE_QUADROTOR || tm.FlightMode != "STABILIZE" {
		t.Errorf("telemetry = %v %q, want the autopilot's QUADROTOR STABILIZE", tm.VehicleType, tm.FlightMode)
	}

	select {
	case f := <-frames:
		if f.ComponentID != companion {
			t.Errorf("first subscribed frame from component %d, want %d", f.ComponentID, companion)
		}
	case <-time.After(time.Second):
		t.Fatalf("Subscribe() saw no companion frame")
	}

	if err := d.SetMode("GUIDED"); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}
	cmds := v.Commands(common.MAV_CMD_DO_SET_MODE)
	if len(cmds) != 1 {
		t.Fatalf("sent %d DO_SET_MODE, want 1", len(cmds))
	}
	if cmds[0].Param2 != 4 {
		t.Errorf("mode number = %v, want copter GUIDED (4)", cmds[0].Param2)
	}
	if cmds[0].TargetComponent != 1 {
		t.Errorf("command addressed to component %d, want the autopilot", cmds[0].TargetComponent)
	}
}

func TestCommandsBeforeConnect(t *testing.T) {
	d := NewDrone(WithLogger(quietLogger()))

	var cmdErr *gcserrors.CommandError
	if err := d.SendCommandLong(common.MAV_CMD_NAV_LAND, [7]float32{}); !errors.As(err, &cmdErr) || !errors.Is(err, gcserrors.ErrNotConnected) {
		t.Errorf("SendCommandLong() error = %v", err)
	}
	if _, err := d.UploadMission(context.Background(), Sequence(TakeoffItem(0, 0, 0, 10))); !errors.Is(err, gcserrors.ErrNotConnected) {
		t.Errorf("UploadMission() error = %v", err)
	}
	d.Disconnect()
}
