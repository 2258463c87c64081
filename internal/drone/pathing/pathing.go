package pathing

import (
	"math"

	"HumaGCS/internal/common"
)

// Coordinate is a geodetic position in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lon == 0
}

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b Coordinate) float64 {
	lat1 := common.DegreesToRadians(a.Lat)
	lat2 := common.DegreesToRadians(b.Lat)
	dLat := lat2 - lat1
	dLon := common.DegreesToRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * common.EarthRadius * math.Asin(math.Sqrt(h))
}

// Distance3D combines the ground distance with the altitude difference.
func Distance3D(a Coordinate, altA float64, b Coordinate, altB float64) float64 {
	ground := Distance(a, b)
	dz := altB - altA
	return math.Sqrt(ground*ground + dz*dz)
}

// Bearing returns the initial bearing from a to b in degrees clockwise from north.
func Bearing(a, b Coordinate) float64 {
	lat1 := common.DegreesToRadians(a.Lat)
	lat2 := common.DegreesToRadians(b.Lat)
	dLon := common.DegreesToRadians(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return common.NormalizeDegrees(common.RadiansToDegrees(math.Atan2(y, x)))
}

// Destination travels distance metres from start along bearing degrees.
func Destination(start Coordinate, bearing, distance float64) Coordinate {
	lat1 := common.DegreesToRadians(start.Lat)
	lon1 := common.DegreesToRadians(start.Lon)
	brng := common.DegreesToRadians(bearing)
	ang := distance / common.EarthRadius

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Coordinate{
		Lat: common.RadiansToDegrees(lat2),
		Lon: common.NormalizeDegrees(common.RadiansToDegrees(lon2)+180) - 180,
	}
}

// ApproachPoint returns the point distance metres short of landing on the line
// from the vehicle at from. When from is unknown or on top of the landing point
// the approach is flown north to south.
func ApproachPoint(from, landing Coordinate, distance float64) Coordinate {
	if distance <= 0 {
		return landing
	}

	back := 0.0
	if !from.IsZero() && Distance(from, landing) > 1 {
		back = Bearing(landing, from)
	}

	return Destination(landing, back, distance)
}

// DeltaXY returns the east and north offsets in metres from origin to c using
// an equirectangular approximation, fine for the few kilometres of a mission.
func DeltaXY(origin, c Coordinate) (east, north float64) {
	lat0 := common.DegreesToRadians(origin.Lat)
	east = common.DegreesToRadians(c.Lon-origin.Lon) * math.Cos(lat0) * common.EarthRadius
	north = common.DegreesToRadians(c.Lat-origin.Lat) * common.EarthRadius
	return east, north
}
