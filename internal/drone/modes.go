package drone

import (
	"fmt"
	"strings"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// FlightMode is an ArduPilot custom_mode number.
type FlightMode uint32

func (m FlightMode) float32() float32 {
	return float32(m)
}

type modeTable map[string]FlightMode

var planeModes = modeTable{
	"MANUAL":       0,
	"CIRCLE":       1,
	"STABILIZE":    2,
	"TRAINING":     3,
	"ACRO":         4,
	"FBWA":         5,
	"FBWB":         6,
	"CRUISE":       7,
	"AUTOTUNE":     8,
	"AUTO":         10,
	"RTL":          11,
	"LOITER":       12,
	"TAKEOFF":      13,
	"AVOID_ADSB":   14,
	"GUIDED":       15,
	"INITIALISING": 16,
	"QSTABILIZE":   17,
	"QHOVER":       18,
	"QLOITER":      19,
	"QLAND":        20,
	"QRTL":         21,
	"QAUTOTUNE":    22,
	"QACRO":        23,
	"THERMAL":      24,
}

var copterModes = modeTable{
	"STABILIZE":    0,
	"ACRO":         1,
	"ALT_HOLD":     2,
	"AUTO":         3,
	"GUIDED":       4,
	"LOITER":       5,
	"RTL":          6,
	"CIRCLE":       7,
	"POSITION":     8,
	"LAND":         9,
	"OF_LOITER":    10,
	"DRIFT":        11,
	"SPORT":        13,
	"FLIP":         14,
	"AUTOTUNE":     15,
	"POSHOLD":      16,
	"BRAKE":        17,
	"THROW":        18,
	"AVOID_ADSB":   19,
	"GUIDED_NOGPS": 20,
	"SMART_RTL":    21,
	"FLOWHOLD":     22,
	"FOLLOW":       23,
	"ZIGZAG":       24,
	"SYSTEMID":     25,
	"AUTOROTATE":   26,
	"AUTO_RTL":     27,
}

// modesFor picks the ArduPilot firmware table for the vehicle type reported in
// HEARTBEAT. Unknown types fall back to the plane table.
func modesFor(vehicle common.MAV_TYPE) modeTable {
	switch vehicle {
	case common.MAV_TYPE_QUADROTOR,
		common.MAV_TYPE_HEXAROTOR,
		common.MAV_TYPE_OCTOROTOR,
		common.MAV_TYPE_TRICOPTER,
		common.MAV_TYPE_COAXIAL,
		common.MAV_TYPE_HELICOPTER,
		common.MAV_TYPE_DODECAROTOR,
		common.MAV_TYPE_DECAROTOR:
		return copterModes
	default:
		return planeModes
	}
}

// ModeNumber resolves a mode name for the vehicle type. Names are case-insensitive.
func ModeNumber(vehicle common.MAV_TYPE, name string) (FlightMode, bool) {
	mode, ok := modesFor(vehicle)[strings.ToUpper(strings.TrimSpace(name))]
	return mode, ok
}

// ModeName renders a custom_mode number, or Mode(n) when it isn't in the table.
func ModeName(vehicle common.MAV_TYPE, mode uint32) string {
	for name, m := range modesFor(vehicle) {
		if uint32(m) == mode {
			return name
		}
	}
	return fmt.Sprintf("Mode(%d)", mode)
}
