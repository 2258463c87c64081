package utils

import "math"

// QuaternionToEuler converts an attitude quaternion (w, x, y, z) into roll, pitch
// and yaw in radians, the units ATTITUDE reports.
func QuaternionToEuler(w, x, y, z float64) (roll, pitch, yaw float64) {
	// Roll (x-axis rotation)
	sinrCosp := 2 * (w*x + y*z)
	cosrCosp := 1 - 2*(x*x+y*y)
	roll = math.Atan2(sinrCosp, cosrCosp)

	// Pitch (y-axis rotation)
	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp) // gimbal lock
	} else {
		pitch = math.Asin(sinp)
	}

	// Yaw (z-axis rotation)
	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	yaw = math.Atan2(sinyCosp, cosyCosp)

	return roll, pitch, yaw
}
