package sim

import (
	"math"

	"github.com/golang/geo/r3"
)

// Pose is the vehicle state produced once per physics step. Controllers
// treat it as read-only.
type Pose struct {
	Pos    r3.Vector // world position, meters
	Vel    r3.Vector // world linear velocity, m/s
	RPY    r3.Vector // roll (X), pitch (Y), yaw (Z), radians
	AngVel r3.Vector // body angular rates, rad/s
}

// MotorCommand carries one RPM value per motor. The zero value means all
// motors off.
type MotorCommand [4]float64

// BodyZ returns the world-frame direction of the body z axis (thrust axis)
// for the given roll/pitch/yaw, using the Z-Y-X rotation order shared with
// the controllers.
func BodyZ(rpy r3.Vector) r3.Vector {
	sr, cr := math.Sincos(rpy.X)
	sp, cp := math.Sincos(rpy.Y)
	sy, cy := math.Sincos(rpy.Z)
	return r3.Vector{
		X: cy*sp*cr + sy*sr,
		Y: sy*sp*cr - cy*sr,
		Z: cp * cr,
	}
}
