// Package missionplan loads waypoint plans from YAML and exports them to KML.
package missionplan

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"HumaGCS/internal/drone"
)

type Point struct {
	Name string  `yaml:"name,omitempty"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
	Alt  float32 `yaml:"alt"`
}

// Plan is a waypoint route with an optional landing point.
type Plan struct {
	Name      string  `yaml:"name"`
	Threshold float64 `yaml:"threshold"`
	Cruise    float32 `yaml:"cruiseAltitude"`
	Points    []Point `yaml:"waypoints"`
	Landing   *Point  `yaml:"landing,omitempty"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading plan %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "parsing plan")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) Validate() error {
	if len(p.Points) == 0 && p.Landing == nil {
		return errors.New("plan has no waypoints")
	}
	check := func(i int, pt Point) error {
		if pt.Lat < -90 || pt.Lat > 90 || pt.Lon < -180 || pt.Lon > 180 {
			return errors.Errorf("waypoint %d (%s) at %.7f,%.7f is out of range", i, pt.Name, pt.Lat, pt.Lon)
		}
		if pt.Alt < 0 {
			return errors.Errorf("waypoint %d (%s) has negative altitude", i, pt.Name)
		}
		return nil
	}
	for i, pt := range p.Points {
		if err := check(i, pt); err != nil {
			return err
		}
	}
	if p.Landing != nil {
		return check(len(p.Points), *p.Landing)
	}
	return nil
}

// Waypoints converts the route for the navigator. Points without an altitude
// fly at the plan cruise altitude.
func (p *Plan) Waypoints() []drone.Waypoint {
	out := make([]drone.Waypoint, 0, len(p.Points))
	for _, pt := range p.Points {
		alt := pt.Alt
		if alt == 0 {
			alt = p.Cruise
		}
		out = append(out, drone.NewWaypoint(pt.Lat, pt.Lon, alt))
	}
	return out
}

// Mission renders the route as an AUTO mission: waypoints, then a landing if set.
func (p *Plan) Mission() []drone.MissionItem {
	var items []drone.MissionItem
	for _, wp := range p.Waypoints() {
		items = append(items, drone.WaypointItem(0, wp.Lat, wp.Lon, wp.Alt))
	}
	if p.Landing != nil {
		items = append(items, drone.LandItem(0, p.Landing.Lat, p.Landing.Lon))
	}
	return drone.Sequence(items...)
}
