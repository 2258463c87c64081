package drone

import (
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	gcscommon "HumaGCS/internal/common"
	"HumaGCS/internal/utils"
)

const unknown = "UNKNOWN"

// Telemetry is a snapshot of the latest vehicle state. Angles are radians with
// degree copies, altitudes metres, speeds m/s.
type Telemetry struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	Altitude         float32 `json:"altitude"`
	RelativeAltitude float32 `json:"relative_altitude"`
	Heading          float32 `json:"heading"`

	Roll     float32 `json:"roll"`
	Pitch    float32 `json:"pitch"`
	Yaw      float32 `json:"yaw"`
	RollDeg  float32 `json:"roll_deg"`
	PitchDeg float32 `json:"pitch_deg"`
	YawDeg   float32 `json:"yaw_deg"`

	Airspeed    float32 `json:"airspeed"`
	Groundspeed float32 `json:"groundspeed"`
	Climb       float32 `json:"climb"`
	Throttle    float32 `json:"throttle"`

	BatteryLevel   int     `json:"battery_level"`
	BatteryVoltage float32 `json:"battery_voltage"`
	BatteryCurrent float32 `json:"battery_current"`

	Armed         bool            `json:"armed"`
	FlightMode    string          `json:"flight_mode"`
	SystemStatus  string          `json:"system_status"`
	VehicleType   common.MAV_TYPE `json:"vehicle_type"`
	GPSFix        int             `json:"gps_fix"`
	Satellites    int             `json:"satellites"`
	LastHeartbeat time.Time       `json:"last_heartbeat"`

	// Updated counts applied messages; it changes whenever any field may have.
	Updated uint64 `json:"-"`
}

func newTelemetry() Telemetry {
	return Telemetry{
		FlightMode:   unknown,
		SystemStatus: unknown,
	}
}

// HasPosition reports whether a GLOBAL_POSITION_INT has been folded in.
func (t Telemetry) HasPosition() bool {
	return t.Lat != 0 || t.Lon != 0
}

// telemetryStore holds the one shared Telemetry record. Each handler writes only
// the fields it owns.
type telemetryStore struct {
	mu sync.RWMutex
	t  Telemetry
}

func newTelemetryStore() *telemetryStore {
	return &telemetryStore{t: newTelemetry()}
}

func (s *telemetryStore) reset() {
	s.mu.Lock()
	s.t = newTelemetry()
	s.mu.Unlock()
}

func (s *telemetryStore) snapshot() Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}

// apply folds msg into the record and reports whether it carried telemetry.
func (s *telemetryStore) apply(msg message.Message, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &s.t
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		t.Armed = m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		t.VehicleType = m.Type
		t.FlightMode = ModeName(m.Type, m.CustomMode)
		t.SystemStatus = m.SystemStatus.String()
		t.LastHeartbeat = at
	case *common.MessageSysStatus:
		if m.BatteryRemaining >= 0 {
			t.BatteryLevel = int(m.BatteryRemaining)
		}
		t.BatteryVoltage = float32(m.VoltageBattery) / 1000
		if m.CurrentBattery >= 0 {
			t.BatteryCurrent = float32(m.CurrentBattery) / 100
		}
	case *common.MessageBatteryStatus:
		if m.CurrentBattery >= 0 {
			t.BatteryCurrent = float32(m.CurrentBattery) / 100
		}
		if m.BatteryRemaining >= 0 {
			t.BatteryLevel = int(m.BatteryRemaining)
		}
	case *common.MessageGpsRawInt:
		t.GPSFix = int(m.FixType)
		t.Satellites = int(m.SatellitesVisible)
	case *common.MessageAttitude:
		setAttitude(t, m.Roll, m.Pitch, m.Yaw)
	case *common.MessageAttitudeQuaternion:
		r, p, y := utils.QuaternionToEuler(float64(m.Q1), float64(m.Q2), float64(m.Q3), float64(m.Q4))
		setAttitude(t, float32(r), float32(p), float32(y))
	case *common.MessageGlobalPositionInt:
		t.Lat = float64(m.Lat) / gcscommon.ScaleE7
		t.Lon = float64(m.Lon) / gcscommon.ScaleE7
		t.Altitude = float32(m.Alt) / 1000
		t.RelativeAltitude = float32(m.RelativeAlt) / 1000
		if m.Hdg != 65535 {
			t.Heading = float32(m.Hdg) / 100
		}
	case *common.MessageVfrHud:
		t.Airspeed = m.Airspeed
		t.Groundspeed = m.Groundspeed
		t.Throttle = float32(gcscommon.Clamp(m.Throttle, 0, 100))
		t.Climb = m.Climb
	default:
		return false
	}

	t.Updated++
	return true
}

func setAttitude(t *Telemetry, roll, pitch, yaw float32) {
	t.Roll, t.Pitch, t.Yaw = roll, pitch, yaw
	t.RollDeg = gcscommon.RadiansToDegrees(roll)
	t.PitchDeg = gcscommon.RadiansToDegrees(pitch)
	t.YawDeg = gcscommon.RadiansToDegrees(yaw)
}
