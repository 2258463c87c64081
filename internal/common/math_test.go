package common

import (
	"math"
	"testing"
)

func TestDegreesRadians(t *testing.T) {
	if got := DegreesToRadians(180.0); math.Abs(got-math.Pi) > 1e-12 {
		t.Errorf("DegreesToRadians(180) = %v", got)
	}
	if got := RadiansToDegrees(float32(math.Pi / 2)); math.Abs(float64(got)-90) > 1e-4 {
		t.Errorf("RadiansToDegrees(pi/2) = %v", got)
	}
}

func TestNormalizeDegrees(t *testing.T) {
	tests := map[float64]float64{
		0:    0,
		360:  0,
		-90:  270,
		450:  90,
		-720: 0,
	}
	for in, want := range tests {
		if got := NormalizeDegrees(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("NormalizeDegrees(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(150, 0, 100); got != 100 {
		t.Errorf("Clamp high = %v", got)
	}
	if got := Clamp(-1, 0, 100); got != 0 {
		t.Errorf("Clamp low = %v", got)
	}
	if got := Clamp(42, 0, 100); got != 42 {
		t.Errorf("Clamp mid = %v", got)
	}
}
