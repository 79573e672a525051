package control

import (
	"math"

	"fieldsweep/internal/sim"
)

// AttitudeConfig holds the inner-loop gains and the fixed motor mixing
// parameters. The mixer and PWM conversion describe vehicle geometry and
// are not runtime tunables.
type AttitudeConfig struct {
	RollPitch Gains
	Yaw       Gains

	// TorqueLimit bounds each axis demand in PWM counts before mixing.
	TorqueLimit float64

	Mixer [4][3]float64

	// PWM <-> RPM conversion and saturation for the ESC model.
	KF            float64
	PWMToRPMScale float64
	PWMToRPMConst float64
	MinPWM        float64
	MaxPWM        float64
}

// AttitudeController tracks a roll/pitch/yaw setpoint and maps the torque
// demand onto per-motor RPM through the mixer. It may run once per physics
// sub-step while the outer loop's setpoint is held constant.
type AttitudeController struct {
	cfg              AttitudeConfig
	roll, pitch, yaw *PID
}

func NewAttitudeController(cfg AttitudeConfig) *AttitudeController {
	return &AttitudeController{
		cfg:   cfg,
		roll:  NewPID(cfg.RollPitch),
		pitch: NewPID(cfg.RollPitch),
		yaw:   NewPID(cfg.Yaw),
	}
}

func (c *AttitudeController) Reset() {
	c.roll.Reset()
	c.pitch.Reset()
	c.yaw.Reset()
}

// Update computes per-motor RPM for the given collective thrust (Newtons)
// and attitude setpoint. Angle errors are wrapped so a heading across the
// +/-pi seam turns the short way.
func (c *AttitudeController) Update(pose sim.Pose, thrustN float64, target Attitude, dt float64) sim.MotorCommand {
	rollE := wrapAngle(target.Roll - pose.RPY.X)
	pitchE := wrapAngle(target.Pitch - pose.RPY.Y)
	yawE := wrapAngle(target.Yaw - pose.RPY.Z)

	// Target body rates are zero: the rate error is just the negated
	// measured rate, which damps the response without derivative kick.
	torque := [3]float64{
		c.roll.Update(rollE, -pose.AngVel.X, dt),
		c.pitch.Update(pitchE, -pose.AngVel.Y, dt),
		c.yaw.Update(yawE, -pose.AngVel.Z, dt),
	}
	if lim := c.cfg.TorqueLimit; lim > 0 {
		for i := range torque {
			torque[i] = clamp(torque[i], -lim, lim)
		}
	}

	pwmThrust := c.thrustToPWM(thrustN)

	var cmd sim.MotorCommand
	for i := 0; i < 4; i++ {
		pwm := pwmThrust
		for axis := 0; axis < 3; axis++ {
			pwm += c.cfg.Mixer[i][axis] * torque[axis]
		}
		pwm = clamp(pwm, c.cfg.MinPWM, c.cfg.MaxPWM)
		cmd[i] = c.cfg.PWMToRPMScale*pwm + c.cfg.PWMToRPMConst
	}
	return cmd
}

// thrustToPWM inverts the ESC model: per-motor thrust T/4 = KF*rpm^2 and
// rpm = scale*pwm + const.
func (c *AttitudeController) thrustToPWM(thrustN float64) float64 {
	if thrustN <= 0 {
		return c.cfg.MinPWM
	}
	rpm := math.Sqrt(thrustN / (4 * c.cfg.KF))
	return (rpm - c.cfg.PWMToRPMConst) / c.cfg.PWMToRPMScale
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
