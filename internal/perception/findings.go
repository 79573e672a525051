package perception

import (
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

type FindingsConfig struct {
	// MaxRecords limits memory use. When exceeded, oldest findings are
	// evicted.
	MaxRecords int
	// MinConfidence drops low-quality classifications.
	MinConfidence float64
	// DedupeRadiusM folds repeated sightings of the same plant into one
	// finding as the vehicle sweeps past it.
	DedupeRadiusM float64
}

// Finding is a recorded detection with the vehicle position it was made
// from.
type Finding struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Position   [3]float64 `json:"position"`
	SeenAtUTC  string     `json:"seen_at_utc"`
}

// Findings accumulates mission detections for reporting. Written by the
// control loop, read by the API; all access goes through the lock.
type Findings struct {
	mu      sync.RWMutex
	cfg     FindingsConfig
	records []Finding
	points  []r3.Vector
}

func NewFindings(cfg FindingsConfig) *Findings {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 200
	}
	if cfg.DedupeRadiusM <= 0 {
		cfg.DedupeRadiusM = 0.3
	}
	return &Findings{cfg: cfg}
}

// Record stores a detection made at the given vehicle position. Negative
// results, low confidence, and repeat sightings of an already-recorded
// plant are dropped.
func (f *Findings) Record(nowUTC time.Time, det Detection, pos r3.Vector) {
	if !det.IsDetection() || det.Confidence < f.cfg.MinConfidence {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, p := range f.points {
		if f.records[i].Label == det.Label && p.Sub(pos).Norm() < f.cfg.DedupeRadiusM {
			return
		}
	}

	f.records = append(f.records, Finding{
		Label:      det.Label,
		Confidence: det.Confidence,
		Position:   [3]float64{pos.X, pos.Y, pos.Z},
		SeenAtUTC:  nowUTC.UTC().Format(time.RFC3339Nano),
	})
	f.points = append(f.points, pos)

	if over := len(f.records) - f.cfg.MaxRecords; over > 0 {
		f.records = append(f.records[:0:0], f.records[over:]...)
		f.points = append(f.points[:0:0], f.points[over:]...)
	}
}

// Snapshot returns the findings in recording order.
func (f *Findings) Snapshot() []Finding {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Finding, len(f.records))
	copy(out, f.records)
	return out
}

// Clear drops accumulated findings, e.g. at the start of a new mission.
func (f *Findings) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	f.points = nil
}
