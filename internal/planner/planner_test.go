package planner

import (
	"errors"
	"math"
	"testing"
)

func approx(t *testing.T, got, want float64, what string) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s=%v want %v", what, got, want)
	}
}

func TestPlan_ScenarioFourByFour(t *testing.T) {
	b := Boundary{MinX: -2, MinY: -2, MaxX: 2, MaxY: 2}
	wps, err := Plan(b, 0.8, 1.4, 0.5)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	// 2 takeoff/transit + 6 rows * 2 endpoints + 2 return/land.
	if len(wps) != 16 {
		t.Fatalf("len(wps)=%d want 16", len(wps))
	}

	approx(t, wps[0].Pos.X, -2.5, "start.X")
	approx(t, wps[0].Pos.Y, -2.5, "start.Y")
	approx(t, wps[0].Pos.Z, 1.4, "start.Z")
	approx(t, wps[1].Pos.X, -2, "transit.X")
	approx(t, wps[1].Pos.Y, -2, "transit.Y")

	wantRows := []float64{-2.0, -1.2, -0.4, 0.4, 1.2, 2.0}
	for i, y := range wantRows {
		rowStart := wps[2+2*i]
		rowEnd := wps[3+2*i]
		approx(t, rowStart.Pos.Y, y, "row start Y")
		approx(t, rowEnd.Pos.Y, y, "row end Y")
		if i%2 == 0 {
			approx(t, rowStart.Pos.X, -2, "even row start X")
			approx(t, rowEnd.Pos.X, 2, "even row end X")
		} else {
			approx(t, rowStart.Pos.X, 2, "odd row start X")
			approx(t, rowEnd.Pos.X, -2, "odd row end X")
		}
	}

	// Last row lands exactly on the far edge.
	if wps[13].Pos.Y != 2.0 {
		t.Fatalf("last row Y=%v want exactly 2.0", wps[13].Pos.Y)
	}

	ret := wps[len(wps)-2]
	land := wps[len(wps)-1]
	if ret.Pos != wps[0].Pos {
		t.Fatalf("return=%v want start %v", ret.Pos, wps[0].Pos)
	}
	approx(t, land.Pos.X, wps[0].Pos.X, "land.X")
	approx(t, land.Pos.Y, wps[0].Pos.Y, "land.Y")
	approx(t, land.Pos.Z, 0, "land.Z")
}

func TestPlan_RowTransitionsAreLateral(t *testing.T) {
	b := Boundary{MinX: 0, MinY: 0, MaxX: 10, MaxY: 3}
	wps, err := Plan(b, 1.0, 2.0, 0.5)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	rows := Rows(b, 1.0)
	for i := 0; i < rows-1; i++ {
		exit := wps[3+2*i]
		entry := wps[4+2*i]
		if exit.Pos.X != entry.Pos.X {
			t.Fatalf("row %d exit X=%v next entry X=%v, want equal", i, exit.Pos.X, entry.Pos.X)
		}
	}
}

func TestPlan_UnevenSpacingClampsLastRow(t *testing.T) {
	b := Boundary{MinX: 0, MinY: 0, MaxX: 5, MaxY: 2.5}
	wps, err := Plan(b, 1.0, 1.0, 0.5)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	// Rows at 0, 1, 2, then a short row clamped to 2.5.
	if got := Rows(b, 1.0); got != 4 {
		t.Fatalf("Rows()=%d want 4", got)
	}
	last := wps[len(wps)-3]
	if last.Pos.Y != 2.5 {
		t.Fatalf("clamped row Y=%v want 2.5", last.Pos.Y)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	b := Boundary{MinX: -1, MinY: -1, MaxX: 4, MaxY: 3}
	a, err := Plan(b, 0.7, 1.2, 0.5)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	c, err := Plan(b, 0.7, 1.2, 0.5)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(a) != len(c) {
		t.Fatalf("len mismatch: %d vs %d", len(a), len(c))
	}
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("waypoint %d differs: %v vs %v", i, a[i], c[i])
		}
	}
}

func TestPlan_RejectsMalformedInput(t *testing.T) {
	valid := Boundary{MinX: 0, MinY: 0, MaxX: 2, MaxY: 2}
	cases := []struct {
		name   string
		b      Boundary
		step   float64
		alt    float64
		margin float64
	}{
		{name: "DegenerateX", b: Boundary{MinX: 1, MinY: 0, MaxX: 1, MaxY: 2}, step: 0.5, alt: 1, margin: 0.5},
		{name: "DegenerateY", b: Boundary{MinX: 0, MinY: 2, MaxX: 2, MaxY: 2}, step: 0.5, alt: 1, margin: 0.5},
		{name: "InvertedX", b: Boundary{MinX: 2, MinY: 0, MaxX: 0, MaxY: 2}, step: 0.5, alt: 1, margin: 0.5},
		{name: "ZeroStep", b: valid, step: 0, alt: 1, margin: 0.5},
		{name: "NegativeStep", b: valid, step: -0.5, alt: 1, margin: 0.5},
		{name: "ZeroAltitude", b: valid, step: 0.5, alt: 0, margin: 0.5},
		{name: "NegativeMargin", b: valid, step: 0.5, alt: 1, margin: -1},
		{name: "NaNBoundary", b: Boundary{MinX: math.NaN(), MinY: 0, MaxX: 2, MaxY: 2}, step: 0.5, alt: 1, margin: 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Plan(tc.b, tc.step, tc.alt, tc.margin)
			if !errors.Is(err, ErrInvalidBoundary) {
				t.Fatalf("err=%v want ErrInvalidBoundary", err)
			}
		})
	}
}
