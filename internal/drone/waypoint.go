package drone

import (
	"context"
	"math"
	"time"

	"HumaGCS/internal/drone/pathing"
	gcserrors "HumaGCS/internal/errors"
)

// Waypoint is a navigation target. Reached is set once the navigator moves past it.
type Waypoint struct {
	Lat     float64
	Lon     float64
	Alt     float32
	Reached bool
}

func NewWaypoint(lat, lon float64, alt float32) Waypoint {
	return Waypoint{Lat: lat, Lon: lon, Alt: alt}
}

// DistanceFunc measures how far pos is from target.
type DistanceFunc func(pos, target Waypoint) float64

// EuclideanDistance treats (Lat, Lon, Alt) as plain cartesian coordinates.
func EuclideanDistance(pos, target Waypoint) float64 {
	dx := target.Lat - pos.Lat
	dy := target.Lon - pos.Lon
	dz := float64(target.Alt - pos.Alt)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// GeodeticDistance is the great-circle distance combined with the altitude
// difference, in metres.
func GeodeticDistance(pos, target Waypoint) float64 {
	return pathing.Distance3D(
		pathing.Coordinate{Lat: pos.Lat, Lon: pos.Lon}, float64(pos.Alt),
		pathing.Coordinate{Lat: target.Lat, Lon: target.Lon}, float64(target.Alt),
	)
}

type NavigatorOption func(*WaypointNavigator)

func WithDistance(fn DistanceFunc) NavigatorOption {
	return func(n *WaypointNavigator) {
		n.distance = fn
	}
}

// WaypointNavigator walks an ordered list of waypoints. It advances when the
// position is within threshold of the target or starts moving away from it.
type WaypointNavigator struct {
	waypoints []Waypoint
	threshold float64
	distance  DistanceFunc

	index    int
	prevDist float64
	hasPrev  bool
}

func NewWaypointNavigator(waypoints []Waypoint, threshold float64, opts ...NavigatorOption) *WaypointNavigator {
	n := &WaypointNavigator{
		waypoints: append([]Waypoint(nil), waypoints...),
		threshold: threshold,
		distance:  EuclideanDistance,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Update feeds the current position and returns the waypoint to fly to, or
// nil once every waypoint has been passed. The previous-distance sample only
// ever compares against the same target.
func (n *WaypointNavigator) Update(pos Waypoint) *Waypoint {
	if n.index >= len(n.waypoints) {
		return nil
	}

	target := &n.waypoints[n.index]
	dist := n.distance(pos, *target)

	if dist <= n.threshold || (n.hasPrev && dist > n.prevDist) {
		target.Reached = true
		n.index++
		n.hasPrev = false

		if n.index >= len(n.waypoints) {
			return nil
		}
		return &n.waypoints[n.index]
	}

	n.prevDist = dist
	n.hasPrev = true
	return target
}

func (n *WaypointNavigator) CurrentIndex() int { return n.index }

func (n *WaypointNavigator) Done() bool { return n.index >= len(n.waypoints) }

// Waypoints returns a copy including the Reached flags.
func (n *WaypointNavigator) Waypoints() []Waypoint {
	return append([]Waypoint(nil), n.waypoints...)
}

// goTo sends a guided-mode MISSION_ITEM_INT (current=2) towards wp.
func (d *Drone) goTo(wp Waypoint) error {
	l, err := d.currentLink()
	if err != nil {
		return &gcserrors.CommandError{Command: "GOTO", Err: err}
	}

	item := WaypointItem(0, wp.Lat, wp.Lon, wp.Alt)
	item.Current = ItemGuidedGoto

	if err := l.Send(item.itemIntMessage(l.TargetSystem(), l.TargetComponent())); err != nil {
		return &gcserrors.CommandError{Command: "GOTO", Err: gcserrors.ErrSendFailed, Cause: err}
	}
	d.logger.Info("flying to waypoint", "lat", wp.Lat, "lon", wp.Lon, "alt", wp.Alt)
	return nil
}

// FlyWaypoints steers the vehicle through waypoints in guided mode, sending a
// new target each time the navigator advances. Distances are metres.
func (d *Drone) FlyWaypoints(ctx context.Context, waypoints []Waypoint, threshold float64) ([]Waypoint, error) {
	nav := NewWaypointNavigator(waypoints, threshold, WithDistance(GeodeticDistance))
	if nav.Done() {
		return nil, nil
	}

	if err := d.goTo(waypoints[0]); err != nil {
		return nav.Waypoints(), err
	}
	sent := 0

	ticker := time.NewTicker(d.timeouts.Navigator)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nav.Waypoints(), ctx.Err()
		case <-ticker.C:
		}

		t := d.Telemetry()
		target := nav.Update(Waypoint{Lat: t.Lat, Lon: t.Lon, Alt: t.RelativeAltitude})
		if target == nil {
			d.logger.Info("all waypoints reached", "count", len(waypoints))
			return nav.Waypoints(), nil
		}

		if idx := nav.CurrentIndex(); idx != sent {
			if err := d.goTo(*target); err != nil {
				return nav.Waypoints(), err
			}
			sent = idx
		}
	}
}
