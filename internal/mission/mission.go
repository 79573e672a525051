package mission

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang/geo/r3"

	"fieldsweep/internal/control"
	"fieldsweep/internal/planner"
	"fieldsweep/internal/sim"
)

type State int

const (
	StateIdle State = iota
	StateDeploying
	StateFlying
	StateStalled
	StateReturningHome
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeploying:
		return "deploying"
	case StateFlying:
		return "flying"
	case StateStalled:
		return "stalled"
	case StateReturningHome:
		return "returning_home"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrMissionAlreadyActive = errors.New("mission already active")
	ErrNoActiveMission      = errors.New("no active mission")
)

// Config carries the mission tuning. Reach tolerance and dwell are chosen
// well under the minimum inter-waypoint spacing so a noisy tick grazing the
// tolerance sphere cannot advance the index.
type Config struct {
	HoverAltitudeM  float64
	SweepStepM      float64
	CruiseSpeedMPS  float64
	StandoffMarginM float64

	ReachToleranceM float64
	ReachSpeedMPS   float64
	DwellTime       time.Duration

	DivergenceLimitM float64
	DivergenceGrace  time.Duration
}

type commandKind int

const (
	cmdDeploy commandKind = iota
	cmdStall
	cmdAbort
)

type command struct {
	kind     commandKind
	farmID   int
	farmName string
	plan     []planner.Waypoint
}

// TickOutput is what one state-machine step hands to the control stack.
type TickOutput struct {
	Setpoint control.Setpoint
	// MotorsOn is false in terminal and idle states; the vehicle sits dark.
	MotorsOn bool
	// ResetControllers is set on the single tick where a transition
	// redefines the control target (deploy, abort retarget). Ordinary
	// waypoint advancement never sets it, so integral state carries across
	// waypoints for continuity.
	ResetControllers bool
}

// Snapshot is the externally visible mission state. All fields are plain
// values captured under one critical section.
type Snapshot struct {
	State          string     `json:"state"`
	Fault          string     `json:"fault,omitempty"`
	FarmID         int        `json:"farm_id"`
	FarmName       string     `json:"farm_name,omitempty"`
	Position       [3]float64 `json:"position"`
	WaypointIndex  int        `json:"waypoint_index"`
	TotalWaypoints int        `json:"total_waypoints"`
	Home           [3]float64 `json:"home"`
}

// Mission owns the waypoint plan, the current index, and the flight state.
// External callers enqueue at most one pending command; the control loop
// consumes it at the top of the next tick, so a command is never observed
// half-applied by a control computation.
type Mission struct {
	mu  sync.Mutex
	cfg Config

	state    State
	fault    string
	farmID   int
	farmName string

	plan  []planner.Waypoint
	index int
	home  r3.Vector

	// Carrot target: a virtual point that glides toward the active
	// waypoint at cruise speed, giving the outer loop a continuous
	// setpoint instead of a step.
	virtualPos r3.Vector
	targetVel  r3.Vector
	waiting    bool
	dwellSec   float64

	stallTarget r3.Vector

	divergedSec float64

	lastPose sim.Pose
	pending  *command
}

func New(cfg Config) *Mission {
	return &Mission{cfg: cfg}
}

// Deploy validates and plans a new mission, then parks it in the command
// slot for the control loop to pick up. Planning failures and wrong-state
// calls reject synchronously without touching mission state.
func (m *Mission) Deploy(farmID int, farmName string, b planner.Boundary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil && m.pending.kind == cmdDeploy {
		return ErrMissionAlreadyActive
	}
	switch m.state {
	case StateIdle, StateCompleted, StateAborted:
	default:
		return ErrMissionAlreadyActive
	}

	plan, err := planner.Plan(b, m.cfg.SweepStepM, m.cfg.HoverAltitudeM, m.cfg.StandoffMarginM)
	if err != nil {
		return err
	}

	m.pending = &command{kind: cmdDeploy, farmID: farmID, farmName: farmName, plan: plan}
	return nil
}

// Stall toggles between Flying and Stalled and reports the state the
// toggle will land in once the control loop applies it.
func (m *Mission) Stall() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFlying:
		m.pending = &command{kind: cmdStall}
		return StateStalled, nil
	case StateStalled:
		m.pending = &command{kind: cmdStall}
		return StateFlying, nil
	default:
		return m.state, ErrNoActiveMission
	}
}

// Abort requests a return to the home position. It takes effect on the
// next tick, never mid-computation.
func (m *Mission) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateDeploying, StateFlying, StateStalled:
		m.pending = &command{kind: cmdAbort}
		return nil
	default:
		return ErrNoActiveMission
	}
}

func (m *Mission) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		State:          m.state.String(),
		Fault:          m.fault,
		FarmID:         m.farmID,
		FarmName:       m.farmName,
		Position:       [3]float64{m.lastPose.Pos.X, m.lastPose.Pos.Y, m.lastPose.Pos.Z},
		WaypointIndex:  m.index,
		TotalWaypoints: len(m.plan),
		Home:           [3]float64{m.home.X, m.home.Y, m.home.Z},
	}
}

// Tick runs one state-machine step: apply at most one pending command,
// check divergence, advance the carrot and waypoint index, and emit the
// setpoint for this control cycle. Strictly sequential with the control
// computation that consumes its output.
func (m *Mission) Tick(pose sim.Pose, dt float64) TickOutput {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPose = pose

	var out TickOutput
	if m.pending != nil {
		out.ResetControllers = m.apply(m.pending, pose)
		m.pending = nil
	}

	switch m.state {
	case StateIdle, StateCompleted, StateAborted:
		return out

	case StateStalled:
		out.MotorsOn = true
		out.Setpoint = control.Setpoint{Pos: m.stallTarget}
		return out

	case StateDeploying, StateFlying, StateReturningHome:
		if m.checkDivergence(pose, dt) {
			out.ResetControllers = true
		}
		out.MotorsOn = true
		out.Setpoint = m.advance(pose, dt)
		return out
	}
	return out
}

// apply consumes one queued command. Reports whether controllers must be
// reset because the control target was redefined.
func (m *Mission) apply(c *command, pose sim.Pose) bool {
	switch c.kind {
	case cmdDeploy:
		m.plan = c.plan
		m.index = 0
		m.home = c.plan[0].Pos
		m.farmID = c.farmID
		m.farmName = c.farmName
		m.fault = ""
		m.state = StateDeploying
		m.virtualPos = pose.Pos
		m.targetVel = r3.Vector{}
		m.waiting = false
		m.dwellSec = 0
		m.divergedSec = 0
		log.Printf("mission: deploying to farm %q (%d waypoints)", c.farmName, len(c.plan))
		return true

	case cmdStall:
		if m.state == StateFlying {
			m.state = StateStalled
			m.stallTarget = pose.Pos
			log.Printf("mission: stalled at (%.2f, %.2f, %.2f)", pose.Pos.X, pose.Pos.Y, pose.Pos.Z)
		} else if m.state == StateStalled {
			m.state = StateFlying
			m.virtualPos = pose.Pos
			m.targetVel = r3.Vector{}
			m.waiting = false
			m.dwellSec = 0
			log.Printf("mission: resuming toward waypoint %d", m.index)
		}
		return false

	case cmdAbort:
		m.retargetHome(pose)
		log.Printf("mission: abort requested, returning home via %d waypoints", len(m.plan))
		return true
	}
	return false
}

// retargetHome discards the remaining sweep and installs the return path:
// climb to hover altitude when below it, then home, then land. Used by both
// operator abort and the divergence watchdog.
func (m *Mission) retargetHome(pose sim.Pose) {
	legs := make([]planner.Waypoint, 0, 3)
	if pose.Pos.Z < m.cfg.HoverAltitudeM {
		legs = append(legs, planner.Waypoint{Pos: r3.Vector{X: pose.Pos.X, Y: pose.Pos.Y, Z: m.cfg.HoverAltitudeM}})
	}
	legs = append(legs,
		planner.Waypoint{Pos: r3.Vector{X: m.home.X, Y: m.home.Y, Z: m.cfg.HoverAltitudeM}},
		planner.Waypoint{Pos: r3.Vector{X: m.home.X, Y: m.home.Y, Z: 0}},
	)

	m.plan = legs
	m.index = 0
	m.state = StateReturningHome
	m.virtualPos = pose.Pos
	m.targetVel = r3.Vector{}
	m.waiting = false
	m.dwellSec = 0
	m.divergedSec = 0
}

// checkDivergence trips when the vehicle has been outside the safety bound
// around its setpoint for longer than the grace period. First trip forces a
// best-effort return home; a trip while already returning gives up and
// grounds the mission.
func (m *Mission) checkDivergence(pose sim.Pose, dt float64) bool {
	if m.cfg.DivergenceLimitM <= 0 {
		return false
	}
	if pose.Pos.Sub(m.virtualPos).Norm() <= m.cfg.DivergenceLimitM {
		m.divergedSec = 0
		return false
	}
	m.divergedSec += dt
	if m.divergedSec <= m.cfg.DivergenceGrace.Seconds() {
		return false
	}

	if m.state == StateReturningHome {
		m.fault = "control divergence during return; mission grounded"
		m.state = StateAborted
		log.Printf("mission: %s", m.fault)
		return false
	}
	m.fault = fmt.Sprintf("control divergence: position error exceeded %.1fm for %s", m.cfg.DivergenceLimitM, m.cfg.DivergenceGrace)
	log.Printf("mission: %s; forcing return home", m.fault)
	m.retargetHome(pose)
	return true
}

// advance moves the carrot toward the active waypoint and promotes the
// state machine when the waypoint is reached: within tolerance, slow, and
// sustained for the dwell time.
func (m *Mission) advance(pose sim.Pose, dt float64) control.Setpoint {
	wp := m.plan[m.index].Pos

	if !m.waiting {
		toGoal := wp.Sub(m.virtualPos)
		dist := toGoal.Norm()
		if dist <= m.cfg.CruiseSpeedMPS*dt {
			m.virtualPos = wp
			m.targetVel = r3.Vector{}
			m.waiting = true
			m.dwellSec = 0
		} else {
			m.targetVel = toGoal.Mul(m.cfg.CruiseSpeedMPS / dist)
			m.virtualPos = m.virtualPos.Add(m.targetVel.Mul(dt))
		}
	}

	if m.waiting {
		inTolerance := pose.Pos.Sub(wp).Norm() < m.cfg.ReachToleranceM
		slow := pose.Vel.Norm() < m.cfg.ReachSpeedMPS
		if inTolerance && slow {
			m.dwellSec += dt
		} else {
			m.dwellSec = 0
		}
		if m.dwellSec >= m.cfg.DwellTime.Seconds() {
			m.waiting = false
			m.dwellSec = 0
			m.reachedWaypoint()
		}
	}

	return control.Setpoint{Pos: m.virtualPos, Vel: m.targetVel, Yaw: m.plan[m.index].Yaw}
}

func (m *Mission) reachedWaypoint() {
	last := m.index == len(m.plan)-1

	switch m.state {
	case StateDeploying:
		m.state = StateFlying
		m.index++
		log.Printf("mission: airborne, sweeping")
	case StateFlying:
		if last {
			m.state = StateCompleted
			log.Printf("mission: sweep complete for farm %q", m.farmName)
			return
		}
		m.index++
	case StateReturningHome:
		if last {
			m.state = StateAborted
			log.Printf("mission: landed at home, mission aborted")
			return
		}
		m.index++
	}
}
