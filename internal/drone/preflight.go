package drone

import (
	"fmt"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
)

// PreArmCheck lists the safety limits t doesn't meet. An empty result means
// the vehicle looks ready to arm.
func PreArmCheck(t Telemetry, limits SafetyLimits) []string {
	var problems []string

	if t.GPSFix < int(common.GPS_FIX_TYPE_3D_FIX) {
		problems = append(problems, fmt.Sprintf("gps fix %d, need 3D", t.GPSFix))
	}
	if t.Satellites < limits.MinSatellites {
		problems = append(problems, fmt.Sprintf("%d satellites, need %d", t.Satellites, limits.MinSatellites))
	}
	if t.BatteryVoltage < limits.MinBatteryVoltage {
		problems = append(problems, fmt.Sprintf("battery %.2fV, need %.2fV", t.BatteryVoltage, limits.MinBatteryVoltage))
	}

	return problems
}

// Armable reports whether the current telemetry passes PreArmCheck.
func (d *Drone) Armable() bool {
	return len(PreArmCheck(d.Telemetry(), d.sequence.Limits)) == 0
}
