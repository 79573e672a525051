package control

import (
	"math"

	"github.com/golang/geo/r3"

	"fieldsweep/internal/sim"
)

// Setpoint is the instantaneous target the mission feeds the outer loop:
// a position, an optional feedforward velocity, and a yaw to hold.
type Setpoint struct {
	Pos r3.Vector
	Vel r3.Vector
	Yaw float64
}

// Attitude is the inner-loop target computed by the position controller.
type Attitude struct {
	Roll  float64
	Pitch float64
	Yaw   float64
}

// PositionConfig holds the outer-loop gains and limits. Horizontal gains
// apply to X and Y, vertical to Z. Outputs are acceleration demands in
// m/s^2 before gravity compensation.
type PositionConfig struct {
	Horizontal Gains
	Vertical   Gains

	MaxTiltRad float64
	MassKg     float64
	Gravity    float64
}

// PositionController converts position/velocity error into a collective
// thrust magnitude and a desired attitude. Horizontal error tilts the
// thrust vector (bounded by MaxTiltRad); vertical error scales it around
// the hover baseline.
type PositionController struct {
	cfg     PositionConfig
	x, y, z *PID
}

func NewPositionController(cfg PositionConfig) *PositionController {
	return &PositionController{
		cfg: cfg,
		x:   NewPID(cfg.Horizontal),
		y:   NewPID(cfg.Horizontal),
		z:   NewPID(cfg.Vertical),
	}
}

// Reset clears the integral state. Called at mission start and on mode
// transitions that redefine the target, never on ordinary waypoint
// advancement.
func (c *PositionController) Reset() {
	c.x.Reset()
	c.y.Reset()
	c.z.Reset()
}

// Update returns the collective thrust in Newtons and the attitude setpoint
// for the inner loop. The derivative path uses measured velocity error, so
// retargeting does not kick the output.
func (c *PositionController) Update(pose sim.Pose, target Setpoint, dt float64) (float64, Attitude) {
	posE := target.Pos.Sub(pose.Pos)
	velE := target.Vel.Sub(pose.Vel)

	accel := r3.Vector{
		X: c.x.Update(posE.X, velE.X, dt),
		Y: c.y.Update(posE.Y, velE.Y, dt),
		Z: c.z.Update(posE.Z, velE.Z, dt) + c.cfg.Gravity,
	}

	// Collective thrust is the demand projected onto the current thrust
	// axis; a tilted vehicle needs more total thrust to hold altitude.
	thrust := c.cfg.MassKg * accel.Dot(sim.BodyZ(pose.RPY))
	if thrust < 0 {
		thrust = 0
	}

	att := attitudeFromAccel(accel, target.Yaw, c.cfg.MaxTiltRad)
	return thrust, att
}

// attitudeFromAccel solves for the roll/pitch that point the body z axis
// along the demanded acceleration while holding the commanded yaw.
func attitudeFromAccel(accel r3.Vector, yaw, maxTilt float64) Attitude {
	norm := accel.Norm()
	if norm < 1e-9 {
		return Attitude{Yaw: yaw}
	}
	zd := accel.Mul(1 / norm)

	sy, cy := math.Sincos(yaw)
	roll := math.Asin(clamp(zd.X*sy-zd.Y*cy, -1, 1))
	pitch := math.Atan2(zd.X*cy+zd.Y*sy, zd.Z)

	if maxTilt > 0 {
		roll = clamp(roll, -maxTilt, maxTilt)
		pitch = clamp(pitch, -maxTilt, maxTilt)
	}
	return Attitude{Roll: roll, Pitch: pitch, Yaw: yaw}
}
