package common

import (
	"math"

	"golang.org/x/exp/constraints"
)

const (
	EarthRadius = 6371000.0 // metres

	// ScaleE7 converts MAVLink int32 degE7 coordinates to degrees.
	ScaleE7 = 1e7
)

func DegreesToRadians[T constraints.Float](degrees T) T {
	return degrees * T(math.Pi) / 180
}

func RadiansToDegrees[T constraints.Float](radians T) T {
	return radians * 180 / T(math.Pi)
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees[T constraints.Float](degrees T) T {
	d := T(math.Mod(float64(degrees), 360))
	if d < 0 {
		d += 360
	}
	return d
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
