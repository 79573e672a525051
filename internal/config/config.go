package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fieldsweep/internal/control"
)

type Config struct {
	Web        WebConfig        `yaml:"web"`
	Sim        SimConfig        `yaml:"sim"`
	Vehicle    VehicleConfig    `yaml:"vehicle"`
	Control    ControlConfig    `yaml:"control"`
	Mission    MissionConfig    `yaml:"mission"`
	Perception PerceptionConfig `yaml:"perception"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Record     RecordConfig     `yaml:"record"`
	Farms      FarmsConfig      `yaml:"farms"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type SimConfig struct {
	PhysicsHz int `yaml:"physics_hz"`
	ControlHz int `yaml:"control_hz"`
}

// VehicleConfig models the airframe. Defaults describe a 27 g quadrotor.
type VehicleConfig struct {
	MassKg    float64 `yaml:"mass_kg"`
	KF        float64 `yaml:"kf"`
	KM        float64 `yaml:"km"`
	ArmM      float64 `yaml:"arm_m"`
	Gravity   float64 `yaml:"gravity"`
	InertiaXX float64 `yaml:"inertia_xx"`
	InertiaYY float64 `yaml:"inertia_yy"`
	InertiaZZ float64 `yaml:"inertia_zz"`
}

type ControlConfig struct {
	PositionHorizontal control.Gains `yaml:"position_horizontal"`
	PositionVertical   control.Gains `yaml:"position_vertical"`
	AttitudeRollPitch  control.Gains `yaml:"attitude_roll_pitch"`
	AttitudeYaw        control.Gains `yaml:"attitude_yaw"`

	MaxTiltRad    float64 `yaml:"max_tilt_rad"`
	TorqueLimit   float64 `yaml:"torque_limit"`
	PWMToRPMScale float64 `yaml:"pwm_to_rpm_scale"`
	PWMToRPMConst float64 `yaml:"pwm_to_rpm_const"`
	MinPWM        float64 `yaml:"min_pwm"`
	MaxPWM        float64 `yaml:"max_pwm"`
}

type MissionConfig struct {
	HoverAltitudeM  float64 `yaml:"hover_altitude_m"`
	SweepStepM      float64 `yaml:"sweep_step_m"`
	CruiseSpeedMPS  float64 `yaml:"cruise_speed_mps"`
	StandoffMarginM float64 `yaml:"standoff_margin_m"`

	ReachToleranceM float64       `yaml:"reach_tolerance_m"`
	ReachSpeedMPS   float64       `yaml:"reach_speed_mps"`
	Dwell           time.Duration `yaml:"dwell"`

	DivergenceLimitM float64       `yaml:"divergence_limit_m"`
	DivergenceGrace  time.Duration `yaml:"divergence_grace"`
}

type CropConfig struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Label string  `yaml:"label"`
}

type PerceptionConfig struct {
	Enable        bool          `yaml:"enable"`
	Interval      time.Duration `yaml:"interval"`
	DetectRadiusM float64       `yaml:"detect_radius_m"`
	MinConfidence float64       `yaml:"min_confidence"`
	DedupeRadiusM float64       `yaml:"dedupe_radius_m"`
	MaxFindings   int           `yaml:"max_findings"`
	Crops         []CropConfig  `yaml:"crops"`
}

type TelemetryConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type FarmsConfig struct {
	Path string `yaml:"path"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields with working defaults and rejects
// combinations the runtime cannot honor.
func DefaultAndValidate(cfg *Config) error {
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Sim.PhysicsHz <= 0 {
		cfg.Sim.PhysicsHz = 240
	}
	if cfg.Sim.ControlHz <= 0 {
		cfg.Sim.ControlHz = 48
	}
	if cfg.Sim.PhysicsHz%cfg.Sim.ControlHz != 0 {
		return fmt.Errorf("sim.physics_hz (%d) must be a multiple of sim.control_hz (%d)",
			cfg.Sim.PhysicsHz, cfg.Sim.ControlHz)
	}

	if cfg.Vehicle.MassKg < 0 || cfg.Vehicle.KF < 0 || cfg.Vehicle.ArmM < 0 {
		return fmt.Errorf("vehicle parameters must be non-negative")
	}
	if cfg.Vehicle.MassKg == 0 {
		cfg.Vehicle.MassKg = 0.027
	}
	if cfg.Vehicle.KF == 0 {
		cfg.Vehicle.KF = 3.16e-10
	}
	if cfg.Vehicle.KM == 0 {
		cfg.Vehicle.KM = 7.94e-12
	}
	if cfg.Vehicle.ArmM == 0 {
		cfg.Vehicle.ArmM = 0.0397
	}
	if cfg.Vehicle.Gravity == 0 {
		cfg.Vehicle.Gravity = 9.8
	}
	if cfg.Vehicle.InertiaXX == 0 {
		cfg.Vehicle.InertiaXX = 1.4e-5
	}
	if cfg.Vehicle.InertiaYY == 0 {
		cfg.Vehicle.InertiaYY = 1.4e-5
	}
	if cfg.Vehicle.InertiaZZ == 0 {
		cfg.Vehicle.InertiaZZ = 2.17e-5
	}

	if zeroGains(cfg.Control.PositionHorizontal) {
		// Damping-dominant: the outer loop runs at control_hz over a fast
		// attitude inner loop, and a stiffer horizontal P with light D does
		// not settle.
		cfg.Control.PositionHorizontal = control.Gains{KP: 0.3, KI: 0.02, KD: 0.6, IntegralLimit: 2}
	}
	if zeroGains(cfg.Control.PositionVertical) {
		cfg.Control.PositionVertical = control.Gains{KP: 1.25, KI: 0.05, KD: 0.5, IntegralLimit: 0.15}
	}
	if zeroGains(cfg.Control.AttitudeRollPitch) {
		cfg.Control.AttitudeRollPitch = control.Gains{KP: 70000, KI: 0, KD: 20000, IntegralLimit: 1}
	}
	if zeroGains(cfg.Control.AttitudeYaw) {
		cfg.Control.AttitudeYaw = control.Gains{KP: 60000, KI: 500, KD: 12000, IntegralLimit: 1}
	}
	if cfg.Control.MaxTiltRad <= 0 {
		cfg.Control.MaxTiltRad = 0.5
	}
	if cfg.Control.TorqueLimit <= 0 {
		cfg.Control.TorqueLimit = 3200
	}
	if cfg.Control.PWMToRPMScale <= 0 {
		cfg.Control.PWMToRPMScale = 0.2685
	}
	if cfg.Control.PWMToRPMConst <= 0 {
		cfg.Control.PWMToRPMConst = 4070.3
	}
	if cfg.Control.MinPWM <= 0 {
		cfg.Control.MinPWM = 20000
	}
	if cfg.Control.MaxPWM <= 0 {
		cfg.Control.MaxPWM = 65535
	}
	if cfg.Control.MinPWM >= cfg.Control.MaxPWM {
		return fmt.Errorf("control.min_pwm must be below control.max_pwm")
	}

	if cfg.Mission.HoverAltitudeM <= 0 {
		cfg.Mission.HoverAltitudeM = 1.0
	}
	if cfg.Mission.SweepStepM <= 0 {
		cfg.Mission.SweepStepM = 0.8
	}
	if cfg.Mission.CruiseSpeedMPS <= 0 {
		cfg.Mission.CruiseSpeedMPS = 0.5
	}
	if cfg.Mission.StandoffMarginM <= 0 {
		cfg.Mission.StandoffMarginM = 0.5
	}
	if cfg.Mission.ReachToleranceM <= 0 {
		cfg.Mission.ReachToleranceM = 0.08
	}
	if cfg.Mission.ReachSpeedMPS <= 0 {
		cfg.Mission.ReachSpeedMPS = 0.12
	}
	if cfg.Mission.Dwell <= 0 {
		cfg.Mission.Dwell = 1500 * time.Millisecond
	}
	if cfg.Mission.DivergenceLimitM <= 0 {
		cfg.Mission.DivergenceLimitM = 1.5
	}
	if cfg.Mission.DivergenceGrace <= 0 {
		cfg.Mission.DivergenceGrace = 3 * time.Second
	}

	if cfg.Perception.Interval <= 0 {
		cfg.Perception.Interval = 250 * time.Millisecond
	}
	if cfg.Perception.DetectRadiusM <= 0 {
		cfg.Perception.DetectRadiusM = 0.4
	}
	if cfg.Perception.MinConfidence < 0 || cfg.Perception.MinConfidence > 1 {
		return fmt.Errorf("perception.min_confidence must be in [0, 1]")
	}
	if cfg.Perception.DedupeRadiusM <= 0 {
		cfg.Perception.DedupeRadiusM = 0.3
	}
	if cfg.Perception.MaxFindings <= 0 {
		cfg.Perception.MaxFindings = 200
	}

	if cfg.Telemetry.Enable {
		if cfg.Telemetry.Dest == "" {
			return fmt.Errorf("telemetry.dest is required when telemetry.enable is true")
		}
	}
	if cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = 1 * time.Second
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}

	return nil
}

func zeroGains(g control.Gains) bool {
	return g == control.Gains{}
}
