package perception

import (
	"math"

	"github.com/golang/geo/r3"
)

// Crop is a known diseased plant the simulated classifier can find.
type Crop struct {
	X     float64
	Y     float64
	Label string
}

// FieldBackend is a deterministic stand-in for the real leaf classifier:
// it reports the nearest seeded crop within the detect radius of the
// frame's ground projection. Confidence falls off linearly with distance.
type FieldBackend struct {
	crops  []Crop
	radius float64
}

func NewFieldBackend(crops []Crop, detectRadius float64) *FieldBackend {
	if detectRadius <= 0 {
		detectRadius = 0.4
	}
	cp := make([]Crop, len(crops))
	copy(cp, crops)
	return &FieldBackend{crops: cp, radius: detectRadius}
}

func (b *FieldBackend) Classify(f Frame) (Detection, error) {
	ground := r3.Vector{X: f.Pos.X, Y: f.Pos.Y}

	best := -1
	bestDist := b.radius
	for i, c := range b.crops {
		d := ground.Sub(r3.Vector{X: c.X, Y: c.Y}).Norm()
		if d <= bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return Detection{Label: LabelNoDetection}, nil
	}

	conf := 0.55 + 0.45*(1-bestDist/b.radius)
	return Detection{Label: b.crops[best].Label, Confidence: math.Min(conf, 1)}, nil
}
