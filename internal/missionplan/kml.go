package missionplan

import (
	"fmt"
	"image/color"
	"io"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	kml "github.com/twpayne/go-kml"
	"github.com/twpayne/go-kml/icon"

	"HumaGCS/internal/drone"
)

func itemStyle(cmd common.MAV_CMD) string {
	switch cmd {
	case common.MAV_CMD_NAV_TAKEOFF:
		return "#styleTakeoff"
	case common.MAV_CMD_NAV_LAND:
		return "#styleLand"
	default:
		return "#styleWaypoint"
	}
}

func itemName(it drone.MissionItem) string {
	switch it.Command {
	case common.MAV_CMD_NAV_TAKEOFF:
		return fmt.Sprintf("WP%d takeoff", it.Seq)
	case common.MAV_CMD_NAV_LAND:
		return fmt.Sprintf("WP%d land", it.Seq)
	default:
		return fmt.Sprintf("WP%d", it.Seq)
	}
}

// MissionKML builds a folder with one placemark per item and the track between them.
func MissionKML(name string, items []drone.MissionItem) kml.Element {
	var track []kml.Coordinate
	var placemarks []kml.Element

	for _, it := range items {
		c := kml.Coordinate{Lon: it.Lon, Lat: it.Lat, Alt: float64(it.Alt)}
		track = append(track, c)

		placemarks = append(placemarks, kml.Placemark(
			kml.Name(itemName(it)),
			kml.Description(fmt.Sprintf("Command: %s<br/>Position: %.7f, %.7f<br/>Altitude: %.1fm<br/>",
				it.Command, it.Lat, it.Lon, it.Alt)),
			kml.StyleURL(itemStyle(it.Command)),
			kml.Point(
				kml.AltitudeMode(kml.AltitudeModeRelativeToGround),
				kml.Coordinates(c),
			),
		))
	}

	path := kml.Placemark(
		kml.Name(name+" track"),
		kml.StyleURL("#styleTrack"),
		kml.LineString(
			kml.AltitudeMode(kml.AltitudeModeRelativeToGround),
			kml.Extrude(true),
			kml.Tessellate(false),
			kml.Coordinates(track...),
		),
	)

	return kml.Folder(kml.Name(name)).
		Add(kml.Visibility(true)).
		Add(styles()...).
		Add(path).
		Add(placemarks...)
}

func styles() []kml.Element {
	paddle := func(id, href string) kml.Element {
		return kml.SharedStyle(id,
			kml.IconStyle(
				kml.Scale(0.8),
				kml.Icon(kml.Href(icon.PaddleHref(href))),
			),
		)
	}
	return []kml.Element{
		paddle("styleTakeoff", "grn-circle"),
		paddle("styleWaypoint", "ylw-diamond"),
		paddle("styleLand", "red-square"),
		kml.SharedStyle("styleTrack",
			kml.LineStyle(
				kml.Color(color.RGBA{R: 0xff, G: 0xa5, A: 0xff}),
				kml.Width(3),
			),
		),
	}
}

// WriteKML writes the mission as a KML document.
func WriteKML(w io.Writer, name string, items []drone.MissionItem) error {
	return kml.KML(kml.Document(MissionKML(name, items))).WriteIndent(w, "", "  ")
}
