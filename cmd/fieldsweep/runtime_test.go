package main

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"fieldsweep/internal/config"
	"fieldsweep/internal/flightlog"
	"fieldsweep/internal/perception"
	"fieldsweep/internal/planner"
)

func newTestRuntime(t *testing.T, mutate func(*config.Config)) *runtime {
	t.Helper()
	var cfg config.Config
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate() error: %v", err)
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := newRuntime(cfg)
	if err != nil {
		t.Fatalf("newRuntime() error: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

// runTicks drives the control loop directly at simulated time, no ticker.
func runTicks(r *runtime, n int) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		now = now.Add(r.tickPeriod)
		r.tick(now)
	}
}

// runUntilState ticks until the mission reports the given state.
func runUntilState(t *testing.T, r *runtime, state string, maxTicks int) int {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < maxTicks; i++ {
		now = now.Add(r.tickPeriod)
		r.tick(now)
		if r.missionCtl.Snapshot().State == state {
			return i + 1
		}
	}
	t.Fatalf("state %q not reached in %d ticks; last=%+v", state, maxTicks, r.missionCtl.Snapshot())
	return 0
}

func TestRuntime_IdleVehicleStaysGrounded(t *testing.T) {
	r := newTestRuntime(t, nil)

	runTicks(r, 100)

	pose := r.quad.Pose()
	if pose.Pos.Z != 0 {
		t.Fatalf("idle vehicle left the ground: z=%v", pose.Pos.Z)
	}
	snap := r.missionCtl.Snapshot()
	if snap.State != "idle" {
		t.Fatalf("state=%q want idle", snap.State)
	}
	if got := r.status.Snapshot(time.Now().UTC(), snap); got.TicksTotal != 100 {
		t.Fatalf("ticks_total=%d want 100", got.TicksTotal)
	}
}

func TestRuntime_FullSweepCompletes(t *testing.T) {
	r := newTestRuntime(t, nil)

	b := planner.Boundary{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	if err := r.missionCtl.Deploy(1, "north field", b); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}

	// Generous cap: the sweep is about a minute of simulated flight.
	runUntilState(t, r, "completed", 48*300)

	snap := r.missionCtl.Snapshot()
	if snap.WaypointIndex != snap.TotalWaypoints-1 {
		t.Fatalf("finished at waypoint %d of %d", snap.WaypointIndex, snap.TotalWaypoints)
	}
	if snap.Fault != "" {
		t.Fatalf("completed with fault %q", snap.Fault)
	}

	// The vehicle parks at the landing point next to the field.
	pose := r.quad.Pose()
	dx := pose.Pos.X - snap.Home[0]
	dy := pose.Pos.Y - snap.Home[1]
	if math.Hypot(dx, dy) > 0.25 {
		t.Fatalf("landed at (%v, %v), home (%v, %v)", pose.Pos.X, pose.Pos.Y, snap.Home[0], snap.Home[1])
	}
	if pose.Pos.Z > 0.05 {
		t.Fatalf("still airborne after landing: z=%v", pose.Pos.Z)
	}
}

func TestRuntime_AbortReturnsHome(t *testing.T) {
	r := newTestRuntime(t, nil)

	b := planner.Boundary{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}
	if err := r.missionCtl.Deploy(1, "north field", b); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}

	// Let it take off and start the sweep, then pull it back.
	runUntilState(t, r, "flying", 48*120)
	runTicks(r, 48*5)
	if err := r.missionCtl.Abort(); err != nil {
		t.Fatalf("Abort() error: %v", err)
	}

	runUntilState(t, r, "aborted", 48*300)

	snap := r.missionCtl.Snapshot()
	pose := r.quad.Pose()
	dx := pose.Pos.X - snap.Home[0]
	dy := pose.Pos.Y - snap.Home[1]
	if math.Hypot(dx, dy) > 0.25 {
		t.Fatalf("aborted at (%v, %v), home (%v, %v)", pose.Pos.X, pose.Pos.Y, snap.Home[0], snap.Home[1])
	}

	// A fresh deploy is allowed after the vehicle is grounded.
	if err := r.missionCtl.Deploy(1, "north field", b); err != nil {
		t.Fatalf("redeploy after abort: %v", err)
	}
}

func TestRuntime_PerceptionRecordsFindings(t *testing.T) {
	r := newTestRuntime(t, func(cfg *config.Config) {
		cfg.Perception.Enable = true
		cfg.Perception.Crops = []config.CropConfig{
			{X: 0.5, Y: 0.5, Label: "leaf_blight"},
		}
	})

	b := planner.Boundary{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	if err := r.missionCtl.Deploy(1, "north field", b); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	runUntilState(t, r, "completed", 48*300)

	found := r.findings.Snapshot()
	if len(found) == 0 {
		t.Fatal("sweep over a marked crop produced no findings")
	}
	for _, f := range found {
		if f.Label != "leaf_blight" {
			t.Fatalf("unexpected label %q", f.Label)
		}
		if f.Confidence <= 0 || f.Confidence > 1 {
			t.Fatalf("confidence out of range: %v", f.Confidence)
		}
	}
}

func TestRuntime_RedeployClearsFindings(t *testing.T) {
	r := newTestRuntime(t, func(cfg *config.Config) {
		cfg.Perception.Enable = true
		cfg.Perception.Crops = []config.CropConfig{
			{X: 0.5, Y: 0.5, Label: "leaf_blight"},
		}
	})
	api := r.api()

	b := planner.Boundary{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	if err := api.Deploy(1, "north field", b); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	runUntilState(t, r, "completed", 48*300)
	if len(r.findings.Snapshot()) == 0 {
		t.Fatal("sweep over a marked crop produced no findings")
	}

	if err := api.Deploy(1, "north field", b); err != nil {
		t.Fatalf("redeploy after completion: %v", err)
	}
	if got := r.findings.Snapshot(); len(got) != 0 {
		t.Fatalf("%d findings from the previous mission survived redeploy", len(got))
	}

	// A rejected deploy keeps the current detections.
	det := perception.Detection{Label: "leaf_blight", Confidence: 0.9}
	r.findings.Record(time.Now(), det, r3.Vector{X: 0.5, Y: 0.5, Z: 1})
	if err := api.Deploy(1, "north field", b); err == nil {
		t.Fatal("deploy during an active mission should fail")
	}
	if got := r.findings.Snapshot(); len(got) != 1 {
		t.Fatalf("rejected deploy altered findings: %d", len(got))
	}
}

func TestRuntime_TrackRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.log")
	r := newTestRuntime(t, func(cfg *config.Config) {
		cfg.Record.Enable = true
		cfg.Record.Path = path
	})

	b := planner.Boundary{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	if err := r.missionCtl.Deploy(1, "north field", b); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	ticks := runUntilState(t, r, "completed", 48*300)
	r.Close()

	recs, err := flightlog.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != ticks {
		t.Fatalf("recorded %d ticks, ran %d", len(recs), ticks)
	}
	if recs[len(recs)-1].State != "completed" {
		t.Fatalf("last record state=%q", recs[len(recs)-1].State)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].T <= recs[i-1].T {
			t.Fatalf("timestamps not increasing at %d: %v then %v", i, recs[i-1].T, recs[i].T)
		}
	}
}

func TestRuntime_DeterministicFlight(t *testing.T) {
	fly := func() [3]float64 {
		r := newTestRuntime(t, nil)
		b := planner.Boundary{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
		if err := r.missionCtl.Deploy(1, "north field", b); err != nil {
			t.Fatalf("Deploy() error: %v", err)
		}
		runTicks(r, 48*10)
		p := r.quad.Pose()
		return [3]float64{p.Pos.X, p.Pos.Y, p.Pos.Z}
	}

	first := fly()
	second := fly()
	if first != second {
		t.Fatalf("identical runs diverged: %v vs %v", first, second)
	}
}
