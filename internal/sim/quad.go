package sim

import (
	"math"

	"github.com/golang/geo/r3"
)

// Params describes the rigid body. Defaults (see DefaultParams) approximate
// a small coax-free quadrotor in plus configuration.
type Params struct {
	MassKg   float64
	KF       float64 // thrust coefficient, N per rpm^2
	KM       float64 // yaw moment coefficient, N*m per rpm^2
	ArmM     float64
	Gravity  float64
	TimeStep float64 // fixed integration step, seconds

	InertiaXX float64
	InertiaYY float64
	InertiaZZ float64

	// Mixer maps motor index to its (roll, pitch, yaw) torque sign so the
	// plant and the attitude controller agree on geometry.
	Mixer [4][3]float64
}

func DefaultParams() Params {
	return Params{
		MassKg:    0.027,
		KF:        3.16e-10,
		KM:        7.94e-12,
		ArmM:      0.0397,
		Gravity:   9.8,
		TimeStep:  1.0 / 240.0,
		InertiaXX: 1.4e-5,
		InertiaYY: 1.4e-5,
		InertiaZZ: 2.17e-5,
		Mixer: [4][3]float64{
			{0, -1, -1},
			{1, 0, 1},
			{0, 1, -1},
			{-1, 0, 1},
		},
	}
}

// HoverRPM returns the per-motor speed at which total thrust balances weight.
func (p Params) HoverRPM() float64 {
	if p.KF <= 0 || p.MassKg <= 0 {
		return 0
	}
	return math.Sqrt(p.MassKg * p.Gravity / (4 * p.KF))
}

// Quadrotor is a deterministic fixed-step rigid-body model. It stands in for
// the external physics engine: same command sequence and initial state, same
// trajectory, every run.
//
// Not safe for concurrent use; the control loop owns it.
type Quadrotor struct {
	p     Params
	pose  Pose
	steps uint64
}

func NewQuadrotor(p Params, start r3.Vector) *Quadrotor {
	return &Quadrotor{p: p, pose: Pose{Pos: start}}
}

func (q *Quadrotor) Pose() Pose { return q.pose }

func (q *Quadrotor) Steps() uint64 { return q.steps }

// Step advances the model by one fixed timestep under the given motor
// command and returns the new pose.
func (q *Quadrotor) Step(cmd MotorCommand) Pose {
	p := q.p
	dt := p.TimeStep

	var forces [4]float64
	total := 0.0
	for i, rpm := range cmd {
		if rpm < 0 {
			rpm = 0
		}
		forces[i] = p.KF * rpm * rpm
		total += forces[i]
	}

	// Torques follow the mixer geometry; yaw reacts to rotor drag.
	var tau r3.Vector
	for i := range forces {
		tau.X += p.Mixer[i][0] * forces[i] * p.ArmM
		tau.Y += p.Mixer[i][1] * forces[i] * p.ArmM
		tau.Z += p.Mixer[i][2] * p.KM * cmd[i] * cmd[i]
	}

	accel := BodyZ(q.pose.RPY).Mul(total / p.MassKg)
	accel.Z -= p.Gravity

	alpha := r3.Vector{
		X: tau.X / p.InertiaXX,
		Y: tau.Y / p.InertiaYY,
		Z: tau.Z / p.InertiaZZ,
	}

	q.pose.AngVel = q.pose.AngVel.Add(alpha.Mul(dt))
	q.pose.RPY = q.pose.RPY.Add(q.pose.AngVel.Mul(dt))
	q.pose.Vel = q.pose.Vel.Add(accel.Mul(dt))
	q.pose.Pos = q.pose.Pos.Add(q.pose.Vel.Mul(dt))

	// Ground plane: no punching through, and touching down kills residual
	// motion so a landed vehicle stays put.
	if q.pose.Pos.Z <= 0 {
		q.pose.Pos.Z = 0
		if q.pose.Vel.Z < 0 {
			q.pose.Vel = r3.Vector{}
			q.pose.AngVel = r3.Vector{}
			q.pose.RPY.X = 0
			q.pose.RPY.Y = 0
		}
	}

	q.steps++
	return q.pose
}
