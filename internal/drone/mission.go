package drone

import (
	"fmt"
	"math"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/pkg/errors"

	gcscommon "HumaGCS/internal/common"
	gcserrors "HumaGCS/internal/errors"
)

// Current values for MissionItem.Current.
const (
	ItemNotCurrent uint8 = 0
	ItemCurrent    uint8 = 1
	ItemGuidedGoto uint8 = 2
)

// MissionItem is one MISSION_ITEM(_INT) to upload.
type MissionItem struct {
	Seq          uint16
	Command      common.MAV_CMD
	Frame        common.MAV_FRAME
	Current      uint8
	Autocontinue bool
	Params       [4]float32
	Lat          float64
	Lon          float64
	Alt          float32
}

func (m MissionItem) String() string {
	return fmt.Sprintf("#%d %s %.7f,%.7f %.1fm", m.Seq, m.Command, m.Lat, m.Lon, m.Alt)
}

func TakeoffItem(seq uint16, lat, lon float64, alt float32) MissionItem {
	return MissionItem{
		Seq:          seq,
		Command:      common.MAV_CMD_NAV_TAKEOFF,
		Frame:        common.MAV_FRAME_GLOBAL_RELATIVE_ALT,
		Autocontinue: true,
		Lat:          lat,
		Lon:          lon,
		Alt:          alt,
	}
}

func WaypointItem(seq uint16, lat, lon float64, alt float32) MissionItem {
	return MissionItem{
		Seq:          seq,
		Command:      common.MAV_CMD_NAV_WAYPOINT,
		Frame:        common.MAV_FRAME_GLOBAL_RELATIVE_ALT,
		Autocontinue: true,
		Lat:          lat,
		Lon:          lon,
		Alt:          alt,
	}
}

func LandItem(seq uint16, lat, lon float64) MissionItem {
	return MissionItem{
		Seq:          seq,
		Command:      common.MAV_CMD_NAV_LAND,
		Frame:        common.MAV_FRAME_GLOBAL_RELATIVE_ALT,
		Autocontinue: true,
		Lat:          lat,
		Lon:          lon,
	}
}

// Sequence renumbers items from zero and marks the first one current.
func Sequence(items ...MissionItem) []MissionItem {
	out := make([]MissionItem, len(items))
	for i, it := range items {
		it.Seq = uint16(i)
		it.Current = ItemNotCurrent
		if i == 0 {
			it.Current = ItemCurrent
		}
		out[i] = it
	}
	return out
}

// ValidateMission checks sequence numbers are contiguous from zero and that
// item 0 is the current item.
func ValidateMission(items []MissionItem) error {
	if len(items) == 0 {
		return errors.WithMessage(gcserrors.ErrInvalidMission, "mission is empty")
	}
	for i, it := range items {
		if int(it.Seq) != i {
			return errors.WithMessagef(gcserrors.ErrInvalidMission, "item %d has seq %d", i, it.Seq)
		}
	}
	if items[0].Current != ItemCurrent {
		return errors.WithMessage(gcserrors.ErrInvalidMission, "item 0 isn't marked current")
	}
	return nil
}

func boolFlag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (m MissionItem) itemMessage(system, component uint8) *common.MessageMissionItem {
	return &common.MessageMissionItem{
		TargetSystem:    system,
		TargetComponent: component,
		Seq:             m.Seq,
		Frame:           m.Frame,
		Command:         m.Command,
		Current:         m.Current,
		Autocontinue:    boolFlag(m.Autocontinue),
		Param1:          m.Params[0],
		Param2:          m.Params[1],
		Param3:          m.Params[2],
		Param4:          m.Params[3],
		X:               float32(m.Lat),
		Y:               float32(m.Lon),
		Z:               m.Alt,
	}
}

func (m MissionItem) itemIntMessage(system, component uint8) *common.MessageMissionItemInt {
	return &common.MessageMissionItemInt{
		TargetSystem:    system,
		TargetComponent: component,
		Seq:             m.Seq,
		Frame:           m.Frame,
		Command:         m.Command,
		Current:         m.Current,
		Autocontinue:    boolFlag(m.Autocontinue),
		Param1:          m.Params[0],
		Param2:          m.Params[1],
		Param3:          m.Params[2],
		Param4:          m.Params[3],
		X:               int32(math.Round(m.Lat * gcscommon.ScaleE7)),
		Y:               int32(math.Round(m.Lon * gcscommon.ScaleE7)),
		Z:               m.Alt,
	}
}
