// Package linktest provides a simulated vehicle that plugs into link.WithTransport.
package linktest

import (
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/frame"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"HumaGCS/internal/link"
)

// Vehicle answers commands and mission uploads like a cooperative autopilot.
// The exported fields configure its behaviour and must be set before Open.
type Vehicle struct {
	SystemID    uint8
	ComponentID uint8
	Type        common.MAV_TYPE

	// HeartbeatPeriod of zero disables periodic heartbeats and positions.
	HeartbeatPeriod time.Duration

	Lat, Lon    float64
	RelativeAlt float32

	RefuseArm   bool
	RejectModes bool
	IgnoreModes bool
	// IgnoreMode silently drops DO_SET_MODE for this custom mode only.
	IgnoreMode *uint32

	LegacyRequests  bool
	SkipClearAck    bool
	MissionResult   common.MAV_MISSION_RESULT
	RequestSequence func(next uint16) uint16
	// WriteError, when set, fails every write it returns an error for.
	WriteError func(msg message.Message) error

	mu          sync.Mutex
	events      chan gomavlib.Event
	closed      bool
	stop        chan struct{}
	wg          sync.WaitGroup
	armed       bool
	customMode  uint32
	missionSize uint16
	received    []message.Message
	mission     []message.Message
	opened      int
}

func NewVehicle() *Vehicle {
	return &Vehicle{
		SystemID:        1,
		ComponentID:     1,
		Type:            common.MAV_TYPE_FIXED_WING,
		HeartbeatPeriod: 20 * time.Millisecond,
		Lat:             -35.3632621,
		Lon:             149.1652374,
		MissionResult:   common.MAV_MISSION_ACCEPTED,
	}
}

// Open satisfies link.OpenFunc.
func (v *Vehicle) Open(_ gomavlib.NodeConf) (link.Transport, error) {
	v.mu.Lock()
	v.events = make(chan gomavlib.Event, 256)
	v.stop = make(chan struct{})
	v.closed = false
	v.opened++
	v.mu.Unlock()

	if v.HeartbeatPeriod > 0 {
		v.wg.Add(1)
		go v.run()
	}
	return v, nil
}

func (v *Vehicle) run() {
	defer v.wg.Done()

	ticker := time.NewTicker(v.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			v.Emit(v.heartbeat())
			v.Emit(v.position())
		}
	}
}

func (v *Vehicle) heartbeat() *common.MessageHeartbeat {
	v.mu.Lock()
	defer v.mu.Unlock()

	base := common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED
	if v.armed {
		base |= common.MAV_MODE_FLAG_SAFETY_ARMED
	}
	return &common.MessageHeartbeat{
		Type:           v.Type,
		Autopilot:      common.MAV_AUTOPILOT_ARDUPILOTMEGA,
		BaseMode:       base,
		CustomMode:     v.customMode,
		SystemStatus:   common.MAV_STATE_STANDBY,
		MavlinkVersion: 3,
	}
}

func (v *Vehicle) position() *common.MessageGlobalPositionInt {
	v.mu.Lock()
	defer v.mu.Unlock()

	return &common.MessageGlobalPositionInt{
		Lat:         int32(v.Lat * 1e7),
		Lon:         int32(v.Lon * 1e7),
		Alt:         int32((584 + v.RelativeAlt) * 1000),
		RelativeAlt: int32(v.RelativeAlt * 1000),
		Hdg:         9000,
	}
}

// Emit queues msg as if the vehicle had sent it. Messages are dropped when
// the queue is full or the transport is closed.
func (v *Vehicle) Emit(msg message.Message) {
	v.EmitFrom(v.ComponentID, msg)
}

// EmitFrom queues msg as sent by another component of the vehicle's system,
// e.g. a companion computer or gimbal.
func (v *Vehicle) EmitFrom(componentID uint8, msg message.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || v.events == nil {
		return
	}

	evt := &gomavlib.EventFrame{
		Frame: &frame.V2Frame{
			SystemID:    v.SystemID,
			ComponentID: componentID,
			Message:     msg,
		},
	}
	select {
	case v.events <- evt:
	default:
	}
}

func (v *Vehicle) Events() chan gomavlib.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.events
}

func (v *Vehicle) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.stop)
	close(v.events)
	v.mu.Unlock()

	v.wg.Wait()
}

// WriteMessageAll records msg and queues the vehicle's reply.
func (v *Vehicle) WriteMessageAll(msg message.Message) error {
	if v.WriteError != nil {
		if err := v.WriteError(msg); err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.received = append(v.received, msg)
	v.mu.Unlock()

	switch m := msg.(type) {
	case *common.MessageCommandLong:
		v.handleCommand(m)
	case *common.MessageMissionClearAll:
		v.mu.Lock()
		v.mission = nil
		v.mu.Unlock()
		if !v.SkipClearAck {
			v.Emit(&common.MessageMissionAck{Type: common.MAV_MISSION_ACCEPTED})
		}
	case *common.MessageMissionCount:
		v.mu.Lock()
		v.missionSize = m.Count
		v.mu.Unlock()
		if m.Count > 0 {
			v.request(v.nextSeq(0))
		}
	case *common.MessageMissionItemInt:
		v.handleItem(m, m.Seq)
	case *common.MessageMissionItem:
		v.handleItem(m, m.Seq)
	}
	return nil
}

func (v *Vehicle) nextSeq(seq uint16) uint16 {
	if v.RequestSequence != nil {
		return v.RequestSequence(seq)
	}
	return seq
}

func (v *Vehicle) request(seq uint16) {
	if v.LegacyRequests {
		v.Emit(&common.MessageMissionRequest{Seq: seq})
		return
	}
	v.Emit(&common.MessageMissionRequestInt{Seq: seq})
}

func (v *Vehicle) handleItem(msg message.Message, seq uint16) {
	v.mu.Lock()
	v.mission = append(v.mission, msg)
	size := v.missionSize
	v.mu.Unlock()

	if seq+1 < size {
		v.request(v.nextSeq(seq + 1))
		return
	}
	v.Emit(&common.MessageMissionAck{Type: v.MissionResult})
}

func (v *Vehicle) handleCommand(m *common.MessageCommandLong) {
	result := common.MAV_RESULT_ACCEPTED

	switch m.Command {
	case common.MAV_CMD_COMPONENT_ARM_DISARM:
		if v.RefuseArm && m.Param1 == 1 {
			result = common.MAV_RESULT_DENIED
			break
		}
		v.mu.Lock()
		v.armed = m.Param1 == 1
		v.mu.Unlock()
	case common.MAV_CMD_DO_SET_MODE:
		if v.IgnoreModes || (v.IgnoreMode != nil && *v.IgnoreMode == uint32(m.Param2)) {
			return
		}
		if v.RejectModes {
			result = common.MAV_RESULT_DENIED
			break
		}
		v.mu.Lock()
		v.customMode = uint32(m.Param2)
		v.mu.Unlock()
	}

	v.Emit(&common.MessageCommandAck{Command: m.Command, Result: result})
	if result == common.MAV_RESULT_ACCEPTED {
		v.Emit(v.heartbeat())
	}
}

// Received returns every message written to the vehicle.
func (v *Vehicle) Received() []message.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]message.Message(nil), v.received...)
}

// Commands returns the COMMAND_LONG messages carrying cmd.
func (v *Vehicle) Commands(cmd common.MAV_CMD) []*common.MessageCommandLong {
	var out []*common.MessageCommandLong
	for _, msg := range v.Received() {
		if c, ok := msg.(*common.MessageCommandLong); ok && c.Command == cmd {
			out = append(out, c)
		}
	}
	return out
}

// Mission returns the items of the last completed or partial upload.
func (v *Vehicle) Mission() []message.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]message.Message(nil), v.mission...)
}

func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

func (v *Vehicle) CustomMode() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.customMode
}

// SetCustomMode changes the reported mode without a command.
func (v *Vehicle) SetCustomMode(mode uint32) {
	v.mu.Lock()
	v.customMode = mode
	v.mu.Unlock()
}

// Closed reports whether the transport opened last has been closed.
func (v *Vehicle) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// Opened counts calls to Open.
func (v *Vehicle) Opened() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.opened
}

// SetPosition moves the vehicle; the next periodic position reports it.
func (v *Vehicle) SetPosition(lat, lon float64, relativeAlt float32) {
	v.mu.Lock()
	v.Lat, v.Lon, v.RelativeAlt = lat, lon, relativeAlt
	v.mu.Unlock()
}
