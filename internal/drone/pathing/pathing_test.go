package pathing

import (
	"math"
	"testing"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Coordinate
		want float64
		tol  float64
	}{
		{"same point", Coordinate{47.39, 8.54}, Coordinate{47.39, 8.54}, 0, 1e-9},
		{"one degree of latitude", Coordinate{0, 0}, Coordinate{1, 0}, 111195, 5},
		{"one degree of longitude at equator", Coordinate{0, 0}, Coordinate{0, 1}, 111195, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if !near(got, tt.want, tt.tol) {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	origin := Coordinate{0, 0}

	if got := Bearing(origin, Coordinate{1, 0}); !near(got, 0, 1e-6) {
		t.Errorf("north bearing = %v", got)
	}
	if got := Bearing(origin, Coordinate{0, 1}); !near(got, 90, 1e-6) {
		t.Errorf("east bearing = %v", got)
	}
	if got := Bearing(origin, Coordinate{-1, 0}); !near(got, 180, 1e-6) {
		t.Errorf("south bearing = %v", got)
	}
	if got := Bearing(origin, Coordinate{0, -1}); !near(got, 270, 1e-6) {
		t.Errorf("west bearing = %v", got)
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	start := Coordinate{-35.3632, 149.1652}
	dst := Destination(start, 45, 1000)

	if d := Distance(start, dst); !near(d, 1000, 0.5) {
		t.Errorf("distance to destination = %v, want 1000", d)
	}
	if b := Bearing(start, dst); !near(b, 45, 0.1) {
		t.Errorf("bearing to destination = %v, want 45", b)
	}
}

func TestApproachPoint(t *testing.T) {
	landing := Coordinate{-35.3632, 149.1652}

	t.Run("unknown position approaches from the north", func(t *testing.T) {
		p := ApproachPoint(Coordinate{}, landing, 300)
		if p.Lat <= landing.Lat {
			t.Errorf("approach latitude %v isn't north of %v", p.Lat, landing.Lat)
		}
		if d := Distance(p, landing); !near(d, 300, 0.5) {
			t.Errorf("approach distance = %v, want 300", d)
		}
	})

	t.Run("approach lies between vehicle and landing point", func(t *testing.T) {
		vehicle := Destination(landing, 90, 2000)
		p := ApproachPoint(vehicle, landing, 300)
		if d := Distance(p, landing); !near(d, 300, 0.5) {
			t.Errorf("approach distance = %v, want 300", d)
		}
		if d := Distance(p, vehicle); !near(d, 1700, 1) {
			t.Errorf("distance from vehicle = %v, want 1700", d)
		}
	})

	t.Run("zero distance lands directly", func(t *testing.T) {
		if p := ApproachPoint(Coordinate{1, 1}, landing, 0); p != landing {
			t.Errorf("ApproachPoint() = %v, want %v", p, landing)
		}
	})
}

func TestDeltaXY(t *testing.T) {
	origin := Coordinate{0, 0}
	east, north := DeltaXY(origin, Coordinate{0.001, 0.001})
	if !near(east, 111.2, 0.5) || !near(north, 111.2, 0.5) {
		t.Errorf("DeltaXY() = (%v, %v)", east, north)
	}
}

func TestDistance3D(t *testing.T) {
	a := Coordinate{0, 0}
	if got := Distance3D(a, 10, a, 40); !near(got, 30, 1e-9) {
		t.Errorf("Distance3D() = %v, want 30", got)
	}
}
