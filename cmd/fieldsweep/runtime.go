package main

import (
	"context"
	"log"
	"time"

	"github.com/golang/geo/r3"

	"fieldsweep/internal/config"
	"fieldsweep/internal/control"
	"fieldsweep/internal/flightlog"
	"fieldsweep/internal/mission"
	"fieldsweep/internal/perception"
	"fieldsweep/internal/planner"
	"fieldsweep/internal/sim"
	"fieldsweep/internal/telemetry"
	"fieldsweep/internal/web"
)

// runtime owns the simulated vehicle and the control stack. Everything in
// tick() runs on one goroutine; the API reaches in only through the
// mission command queue and the status atomics.
type runtime struct {
	cfg config.Config

	status     *web.Status
	missionCtl *mission.Mission
	findings   *perception.Findings

	quad   *sim.Quadrotor
	posCtl *control.PositionController
	attCtl *control.AttitudeController

	sampler *perception.Sampler
	tele    *telemetry.Broadcaster
	track   *flightlog.Writer

	subSteps   int
	ctrlDT     float64
	physDT     float64
	tickPeriod time.Duration

	simStart   time.Time
	simElapsed time.Duration

	teleFailed  bool
	trackFailed bool
}

func newRuntime(cfg config.Config) (*runtime, error) {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return nil, err
	}

	params := sim.Params{
		MassKg:    cfg.Vehicle.MassKg,
		KF:        cfg.Vehicle.KF,
		KM:        cfg.Vehicle.KM,
		ArmM:      cfg.Vehicle.ArmM,
		Gravity:   cfg.Vehicle.Gravity,
		TimeStep:  1.0 / float64(cfg.Sim.PhysicsHz),
		InertiaXX: cfg.Vehicle.InertiaXX,
		InertiaYY: cfg.Vehicle.InertiaYY,
		InertiaZZ: cfg.Vehicle.InertiaZZ,
		Mixer:     sim.DefaultParams().Mixer,
	}

	r := &runtime{
		cfg:    cfg,
		status: web.NewStatus(),
		missionCtl: mission.New(mission.Config{
			HoverAltitudeM:   cfg.Mission.HoverAltitudeM,
			SweepStepM:       cfg.Mission.SweepStepM,
			CruiseSpeedMPS:   cfg.Mission.CruiseSpeedMPS,
			StandoffMarginM:  cfg.Mission.StandoffMarginM,
			ReachToleranceM:  cfg.Mission.ReachToleranceM,
			ReachSpeedMPS:    cfg.Mission.ReachSpeedMPS,
			DwellTime:        cfg.Mission.Dwell,
			DivergenceLimitM: cfg.Mission.DivergenceLimitM,
			DivergenceGrace:  cfg.Mission.DivergenceGrace,
		}),
		findings: perception.NewFindings(perception.FindingsConfig{
			MaxRecords:    cfg.Perception.MaxFindings,
			MinConfidence: cfg.Perception.MinConfidence,
			DedupeRadiusM: cfg.Perception.DedupeRadiusM,
		}),
		quad: sim.NewQuadrotor(params, r3.Vector{}),
		posCtl: control.NewPositionController(control.PositionConfig{
			Horizontal: cfg.Control.PositionHorizontal,
			Vertical:   cfg.Control.PositionVertical,
			MaxTiltRad: cfg.Control.MaxTiltRad,
			MassKg:     params.MassKg,
			Gravity:    params.Gravity,
		}),
		attCtl: control.NewAttitudeController(control.AttitudeConfig{
			RollPitch:     cfg.Control.AttitudeRollPitch,
			Yaw:           cfg.Control.AttitudeYaw,
			TorqueLimit:   cfg.Control.TorqueLimit,
			Mixer:         params.Mixer,
			KF:            params.KF,
			PWMToRPMScale: cfg.Control.PWMToRPMScale,
			PWMToRPMConst: cfg.Control.PWMToRPMConst,
			MinPWM:        cfg.Control.MinPWM,
			MaxPWM:        cfg.Control.MaxPWM,
		}),
		subSteps:   cfg.Sim.PhysicsHz / cfg.Sim.ControlHz,
		ctrlDT:     1.0 / float64(cfg.Sim.ControlHz),
		physDT:     params.TimeStep,
		tickPeriod: time.Second / time.Duration(cfg.Sim.ControlHz),
		simStart:   time.Now().UTC(),
	}
	r.status.SetStatic(cfg.Web.Listen)

	if cfg.Perception.Enable {
		crops := make([]perception.Crop, 0, len(cfg.Perception.Crops))
		for _, c := range cfg.Perception.Crops {
			crops = append(crops, perception.Crop{X: c.X, Y: c.Y, Label: c.Label})
		}
		backend := perception.NewFieldBackend(crops, cfg.Perception.DetectRadiusM)
		r.sampler = perception.NewSampler(backend, cfg.Perception.Interval)
		r.status.SetPerceptionState("active")
	}

	if cfg.Telemetry.Enable {
		tele, err := telemetry.NewBroadcaster(cfg.Telemetry.Dest, cfg.Telemetry.Interval)
		if err != nil {
			return nil, err
		}
		r.tele = tele
	}

	if cfg.Record.Enable {
		track, err := flightlog.CreateWriter(cfg.Record.Path)
		if err != nil {
			return nil, err
		}
		r.track = track
	}

	return r, nil
}

// missionAPI fronts the mission state machine for the web layer. A new
// deployment starts with an empty findings store so detections from the
// previous mission do not bleed into this one.
type missionAPI struct {
	ctl      *mission.Mission
	findings *perception.Findings
}

func (r *runtime) api() *missionAPI {
	return &missionAPI{ctl: r.missionCtl, findings: r.findings}
}

func (a *missionAPI) Deploy(farmID int, farmName string, b planner.Boundary) error {
	if err := a.ctl.Deploy(farmID, farmName, b); err != nil {
		return err
	}
	a.findings.Clear()
	return nil
}

func (a *missionAPI) Stall() (mission.State, error) { return a.ctl.Stall() }

func (a *missionAPI) Abort() error { return a.ctl.Abort() }

func (a *missionAPI) Snapshot() mission.Snapshot { return a.ctl.Snapshot() }

// tick runs one control cycle: state machine, outer position loop once,
// inner attitude loop and plant once per physics sub-step.
func (r *runtime) tick(now time.Time) {
	pose := r.quad.Pose()
	out := r.missionCtl.Tick(pose, r.ctrlDT)
	if out.ResetControllers {
		r.posCtl.Reset()
		r.attCtl.Reset()
	}

	if out.MotorsOn {
		thrustN, att := r.posCtl.Update(pose, out.Setpoint, r.ctrlDT)
		for i := 0; i < r.subSteps; i++ {
			cmd := r.attCtl.Update(r.quad.Pose(), thrustN, att, r.physDT)
			r.quad.Step(cmd)
		}
	} else {
		for i := 0; i < r.subSteps; i++ {
			r.quad.Step(sim.MotorCommand{})
		}
	}
	r.simElapsed += time.Duration(float64(time.Second) * r.ctrlDT)
	simNow := r.simStart.Add(r.simElapsed)

	if r.sampler != nil && out.MotorsOn {
		p := r.quad.Pose()
		r.sampler.Sample(simNow, perception.Frame{Pos: p.Pos, CapturedAt: simNow})
		if det, ok := r.sampler.TryLatest(); ok && det.IsDetection() {
			r.findings.Record(simNow, det, p.Pos)
		}
		if !r.sampler.Available() {
			r.status.SetPerceptionState("degraded")
		}
	}

	r.status.MarkTick(now, r.simElapsed)

	snap := r.missionCtl.Snapshot()
	if r.track != nil && !r.trackFailed {
		p := r.quad.Pose()
		err := r.track.WriteRecord(flightlog.Record{
			T:        r.simElapsed.Seconds(),
			State:    snap.State,
			Pos:      [3]float64{p.Pos.X, p.Pos.Y, p.Pos.Z},
			RPY:      [3]float64{p.RPY.X, p.RPY.Y, p.RPY.Z},
			Waypoint: snap.WaypointIndex,
		})
		if err != nil {
			log.Printf("track record failed, disabling: %v", err)
			r.trackFailed = true
		}
	}

	if r.tele != nil {
		if err := r.tele.Publish(now, r.status.Snapshot(now, snap)); err != nil {
			if !r.teleFailed {
				log.Printf("telemetry send failed: %v", err)
				r.teleFailed = true
			}
		} else {
			r.teleFailed = false
		}
	}
}

func (r *runtime) run(ctx context.Context) {
	ticker := time.NewTicker(r.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.tick(now.UTC())
		}
	}
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.track != nil {
		if err := r.track.Close(); err != nil {
			log.Printf("track close failed: %v", err)
		}
		r.track = nil
	}
	if r.tele != nil {
		_ = r.tele.Close()
		r.tele = nil
	}
}
