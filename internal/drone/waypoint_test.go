package drone

import (
	"context"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"HumaGCS/internal/drone/pathing"
	"HumaGCS/internal/link/linktest"
)

func TestNavigatorAdvancesWithinThreshold(t *testing.T) {
	nav := NewWaypointNavigator([]Waypoint{
		NewWaypoint(0, 0, 10),
		NewWaypoint(1, 0, 10),
	}, 5)

	first := nav.Update(NewWaypoint(0, 0, 10))
	if first == nil || first.Lat != 1 {
		t.Fatalf("first Update() = %v, want second waypoint", first)
	}
	if nav.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", nav.CurrentIndex())
	}

	if second := nav.Update(NewWaypoint(0, 0, 10)); second != nil {
		t.Errorf("second Update() = %v, want nil", second)
	}
	if !nav.Done() {
		t.Errorf("Done() = false")
	}
	for i, wp := range nav.Waypoints() {
		if !wp.Reached {
			t.Errorf("waypoint %d not marked reached", i)
		}
	}
	if again := nav.Update(NewWaypoint(0, 0, 10)); again != nil {
		t.Errorf("Update() after done = %v", again)
	}
}

func TestNavigatorAdvancesOnOvershoot(t *testing.T) {
	nav := NewWaypointNavigator([]Waypoint{
		NewWaypoint(100, 0, 10),
		NewWaypoint(200, 0, 10),
	}, 1)

	if wp := nav.Update(NewWaypoint(90, 0, 10)); wp == nil || wp.Lat != 100 {
		t.Fatalf("approaching: %v", wp)
	}
	if wp := nav.Update(NewWaypoint(98, 0, 10)); wp == nil || wp.Lat != 100 {
		t.Fatalf("closer: %v", wp)
	}
	// passed it 3 units to the side: distance grew from 2 to 3
	if wp := nav.Update(NewWaypoint(103, 0, 10)); wp == nil || wp.Lat != 200 {
		t.Fatalf("overshoot: %v, want next waypoint", wp)
	}

	// the first sample against the new target never counts as moving away
	if wp := nav.Update(NewWaypoint(104, 0, 10)); wp == nil || wp.Lat != 200 {
		t.Errorf("after advance: %v", wp)
	}
}

func TestNavigatorEmpty(t *testing.T) {
	nav := NewWaypointNavigator(nil, 5)
	if wp := nav.Update(NewWaypoint(0, 0, 0)); wp != nil {
		t.Errorf("Update() = %v, want nil", wp)
	}
	if !nav.Done() {
		t.Errorf("Done() = false for empty route")
	}
}

func TestNavigatorCopiesInput(t *testing.T) {
	route := []Waypoint{NewWaypoint(0, 0, 0)}
	nav := NewWaypointNavigator(route, 5)
	nav.Update(NewWaypoint(0, 0, 0))

	if route[0].Reached {
		t.Errorf("navigator mutated the caller's slice")
	}
}

func TestFlyWaypoints(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, v.Open)

	if !eventually(t, time.Second, func() bool { return d.Telemetry().HasPosition() }) {
		t.Fatalf("no position")
	}

	start := pathing.Coordinate{Lat: v.Lat, Lon: v.Lon}
	next := pathing.Destination(start, 0, 200)
	route := []Waypoint{
		NewWaypoint(start.Lat, start.Lon, 0),
		NewWaypoint(next.Lat, next.Lon, 30),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	type result struct {
		wps []Waypoint
		err error
	}
	done := make(chan result, 1)
	go func() {
		wps, err := d.FlyWaypoints(ctx, route, 5)
		done <- result{wps, err}
	}()

	gotos := func() []*common.MessageMissionItemInt {
		var out []*common.MessageMissionItemInt
		for _, m := range v.Received() {
			if it, ok := m.(*common.MessageMissionItemInt); ok && it.Current == ItemGuidedGoto {
				out = append(out, it)
			}
		}
		return out
	}

	if !eventually(t, time.Second, func() bool { return len(gotos()) == 2 }) {
		t.Fatalf("sent %d guided targets, want 2", len(gotos()))
	}
	v.SetPosition(next.Lat, next.Lon, 30)

	res := <-done
	if res.err != nil {
		t.Fatalf("FlyWaypoints() error = %v", res.err)
	}
	for i, wp := range res.wps {
		if !wp.Reached {
			t.Errorf("waypoint %d not reached", i)
		}
	}

	last := gotos()[1]
	if last.Frame != common.MAV_FRAME_GLOBAL_RELATIVE_ALT || last.Command != common.MAV_CMD_NAV_WAYPOINT || last.Z != 30 {
		t.Errorf("guided target = %+v", last)
	}
}

func TestFlyWaypointsCancelled(t *testing.T) {
	v := linktest.NewVehicle()
	d := newTestDrone(t, v.Open)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	far := []Waypoint{NewWaypoint(10, 10, 100)}
	if _, err := d.FlyWaypoints(ctx, far, 5); err != context.DeadlineExceeded {
		t.Errorf("FlyWaypoints() error = %v, want deadline exceeded", err)
	}
}
