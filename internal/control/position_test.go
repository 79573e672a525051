package control

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"fieldsweep/internal/sim"
)

func testPositionConfig() PositionConfig {
	return PositionConfig{
		Horizontal: Gains{KP: 0.3, KI: 0.02, KD: 0.6, IntegralLimit: 2},
		Vertical:   Gains{KP: 1.25, KI: 0.05, KD: 0.5, IntegralLimit: 0.15},
		MaxTiltRad: 0.5,
		MassKg:     0.027,
		Gravity:    9.8,
	}
}

func TestPositionController_HoverEquilibrium(t *testing.T) {
	cfg := testPositionConfig()
	c := NewPositionController(cfg)
	pose := sim.Pose{Pos: r3.Vector{Z: 1.4}}
	target := Setpoint{Pos: r3.Vector{Z: 1.4}}

	thrust, att := c.Update(pose, target, 1.0/48.0)

	if want := cfg.MassKg * cfg.Gravity; thrust != want {
		t.Fatalf("thrust=%v want hover baseline %v", thrust, want)
	}
	if att.Roll != 0 || att.Pitch != 0 {
		t.Fatalf("attitude=%+v want level", att)
	}
}

func TestPositionController_ForwardErrorPitchesForward(t *testing.T) {
	c := NewPositionController(testPositionConfig())
	pose := sim.Pose{Pos: r3.Vector{Z: 1.4}}
	target := Setpoint{Pos: r3.Vector{X: 1, Z: 1.4}}

	_, att := c.Update(pose, target, 1.0/48.0)

	if att.Pitch <= 0 {
		t.Fatalf("pitch=%v want positive toward +X target", att.Pitch)
	}
	if att.Roll != 0 {
		t.Fatalf("roll=%v want 0 with no Y error", att.Roll)
	}
}

func TestPositionController_TiltClamp(t *testing.T) {
	cfg := testPositionConfig()
	c := NewPositionController(cfg)
	pose := sim.Pose{Pos: r3.Vector{Z: 1.4}}
	target := Setpoint{Pos: r3.Vector{X: 1000, Y: -1000, Z: 1.4}}

	_, att := c.Update(pose, target, 1.0/48.0)

	if att.Pitch != cfg.MaxTiltRad {
		t.Fatalf("pitch=%v want clamped at %v", att.Pitch, cfg.MaxTiltRad)
	}
	if att.Roll != cfg.MaxTiltRad {
		t.Fatalf("roll=%v want clamped at %v", att.Roll, cfg.MaxTiltRad)
	}
}

func TestPositionController_SustainedErrorOutputSettles(t *testing.T) {
	// With the integral clamped, the output under a constant large error
	// stops growing instead of winding up without bound.
	c := NewPositionController(testPositionConfig())
	pose := sim.Pose{Pos: r3.Vector{Z: 0.2}}
	target := Setpoint{Pos: r3.Vector{Z: 5}}

	var prev float64
	for i := 0; i < 200; i++ {
		prev, _ = c.Update(pose, target, 1.0/48.0)
	}
	settled, _ := c.Update(pose, target, 1.0/48.0)
	if settled != prev {
		t.Fatalf("thrust still changing after clamp: %v vs %v", settled, prev)
	}
}

func TestPositionController_HorizontalStepSettles(t *testing.T) {
	// Closed loop over the plant: a 0.7 m horizontal step must decay to the
	// setpoint instead of ringing. An underdamped horizontal loop swings
	// half a meter past the target indefinitely and never settles.
	posCfg := testPositionConfig()
	attCfg := testAttitudeConfig()
	params := sim.DefaultParams()
	quad := sim.NewQuadrotor(params, r3.Vector{Z: 1})
	posCtl := NewPositionController(posCfg)
	attCtl := NewAttitudeController(attCfg)

	target := Setpoint{Pos: r3.Vector{X: 0.7, Z: 1}}
	const ctrlDT = 1.0 / 48.0
	const subSteps = 5

	maxX := 0.0
	for tick := 0; tick < 48*10; tick++ {
		pose := quad.Pose()
		thrust, att := posCtl.Update(pose, target, ctrlDT)
		for s := 0; s < subSteps; s++ {
			cmd := attCtl.Update(quad.Pose(), thrust, att, params.TimeStep)
			pose = quad.Step(cmd)
		}
		if pose.Pos.X > maxX {
			maxX = pose.Pos.X
		}
	}

	final := quad.Pose()
	if math.Abs(final.Pos.X-0.7) > 0.08 {
		t.Fatalf("x=%v after 10s, want within 0.08 of 0.7", final.Pos.X)
	}
	if speed := final.Vel.Norm(); speed > 0.12 {
		t.Fatalf("speed=%v after 10s, want settled below 0.12", speed)
	}
	if maxX > 1.0 {
		t.Fatalf("peak x=%v, overshoot past the target must stay bounded", maxX)
	}
}

func TestPositionController_DerivativeTracksMeasuredVelocity(t *testing.T) {
	// Jumping the target with zero velocity error must not change the
	// derivative contribution; moving fast toward the target must damp it.
	cfg := testPositionConfig()
	cfg.Horizontal = Gains{KD: 0.2}
	c := NewPositionController(cfg)

	still := sim.Pose{Pos: r3.Vector{Z: 1.4}}
	_, attStill := c.Update(still, Setpoint{Pos: r3.Vector{X: 50, Z: 1.4}}, 1.0/48.0)
	if attStill.Pitch != 0 {
		t.Fatalf("pitch=%v want 0: target jump alone must not excite KD", attStill.Pitch)
	}

	moving := sim.Pose{Pos: r3.Vector{Z: 1.4}, Vel: r3.Vector{X: 2}}
	_, attMoving := c.Update(moving, Setpoint{Pos: r3.Vector{X: 50, Z: 1.4}}, 1.0/48.0)
	if attMoving.Pitch >= 0 {
		t.Fatalf("pitch=%v want negative braking tilt while closing fast", attMoving.Pitch)
	}
}

func TestAttitudeFromAccel_PureVertical(t *testing.T) {
	att := attitudeFromAccel(r3.Vector{Z: 9.8}, 0.3, 0.5)
	if att.Roll != 0 || att.Pitch != 0 {
		t.Fatalf("att=%+v want level", att)
	}
	if att.Yaw != 0.3 {
		t.Fatalf("yaw=%v want passthrough 0.3", att.Yaw)
	}
}

func TestAttitudeFromAccel_YawRotatesTiltPlane(t *testing.T) {
	// The same world-frame demand expressed at yaw=pi/2 moves from the
	// pitch axis onto the roll axis.
	a := r3.Vector{X: 2, Z: 9.8}
	at0 := attitudeFromAccel(a, 0, 0.5)
	at90 := attitudeFromAccel(a, math.Pi/2, 0.5)

	if at0.Pitch <= 0 || math.Abs(at0.Roll) > 1e-12 {
		t.Fatalf("yaw=0: att=%+v want pure pitch", at0)
	}
	if at90.Roll <= 0 {
		t.Fatalf("yaw=90: roll=%v want positive", at90.Roll)
	}
	if math.Abs(at90.Pitch) > 1e-9 {
		t.Fatalf("yaw=90: pitch=%v want ~0", at90.Pitch)
	}
}

func TestAttitudeFromAccel_ZeroDemandIsLevel(t *testing.T) {
	att := attitudeFromAccel(r3.Vector{}, 1.1, 0.5)
	if att.Roll != 0 || att.Pitch != 0 || att.Yaw != 1.1 {
		t.Fatalf("att=%+v want level with yaw passthrough", att)
	}
}
