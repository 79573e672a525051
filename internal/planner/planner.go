package planner

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
)

// Boundary is the rectangular inspection zone in field coordinates (meters).
type Boundary struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

var ErrInvalidBoundary = errors.New("invalid field boundary")

func (b Boundary) Validate() error {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBoundary
		}
	}
	if b.MaxX <= b.MinX || b.MaxY <= b.MinY {
		return ErrInvalidBoundary
	}
	return nil
}

// Waypoint is a target position the vehicle must reach before advancing.
// Yaw is held constant along the sweep so the camera footprint stays aligned
// with the rows.
type Waypoint struct {
	Pos r3.Vector
	Yaw float64
}

// rowEps absorbs float accumulation when deciding how many sweep rows fit.
const rowEps = 1e-9

// Plan produces the full coverage path for one mission: a start point offset
// from the field corner by the standoff margin, a transit to the first row,
// a boustrophedon sweep over the field, and return/land points back at the
// start. The output depends only on the inputs.
//
// The last row is clamped exactly onto MaxY even when sweepStep does not
// divide the field evenly, so the far edge is always covered.
func Plan(b Boundary, sweepStep, hoverAltitude, margin float64) ([]Waypoint, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if sweepStep <= 0 || math.IsNaN(sweepStep) {
		return nil, ErrInvalidBoundary
	}
	if hoverAltitude <= 0 || math.IsNaN(hoverAltitude) {
		return nil, ErrInvalidBoundary
	}
	if margin < 0 || math.IsNaN(margin) {
		return nil, ErrInvalidBoundary
	}

	rows := int(math.Ceil((b.MaxY-b.MinY)/sweepStep-rowEps)) + 1

	wps := make([]Waypoint, 0, 2*rows+4)

	start := r3.Vector{X: b.MinX - margin, Y: b.MinY - margin, Z: hoverAltitude}
	wps = append(wps, Waypoint{Pos: start})
	wps = append(wps, Waypoint{Pos: r3.Vector{X: b.MinX, Y: b.MinY, Z: hoverAltitude}})

	for i := 0; i < rows; i++ {
		y := b.MinY + float64(i)*sweepStep
		if i == rows-1 || y > b.MaxY {
			y = b.MaxY
		}
		xStart, xEnd := b.MinX, b.MaxX
		if i%2 == 1 {
			xStart, xEnd = b.MaxX, b.MinX
		}
		// Row entry sits directly above the previous row's exit (the sweep
		// alternates direction), so the transition between rows is a pure
		// lateral move with no diagonal across unswept ground.
		wps = append(wps,
			Waypoint{Pos: r3.Vector{X: xStart, Y: y, Z: hoverAltitude}},
			Waypoint{Pos: r3.Vector{X: xEnd, Y: y, Z: hoverAltitude}},
		)
	}

	wps = append(wps, Waypoint{Pos: start})
	wps = append(wps, Waypoint{Pos: r3.Vector{X: start.X, Y: start.Y, Z: 0}})

	return wps, nil
}

// Rows reports how many sweep rows Plan emits for the given inputs.
func Rows(b Boundary, sweepStep float64) int {
	if sweepStep <= 0 || b.MaxY <= b.MinY {
		return 0
	}
	return int(math.Ceil((b.MaxY-b.MinY)/sweepStep-rowEps)) + 1
}
