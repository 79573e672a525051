package perception

import (
	"log"
	"sync"
	"time"

	"github.com/golang/geo/r3"
)

// LabelNoDetection is reported when the classifier sees nothing of
// interest in a frame. It is a valid result, not an error.
const LabelNoDetection = "NO_DETECTION"

// Detection is one classification result. Confidence is in [0,1].
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (d Detection) IsDetection() bool {
	return d.Label != "" && d.Label != LabelNoDetection
}

// Frame is what the camera hands the classifier: where the vehicle was when
// the frame was captured. The pixel payload stays on the perception side of
// the boundary.
type Frame struct {
	Pos        r3.Vector
	CapturedAt time.Time
}

// Backend classifies a frame. Implementations must tolerate being called
// far less often than the control tick and must not block for long.
type Backend interface {
	Classify(Frame) (Detection, error)
}

// Sampler polls an optional backend at its own cadence, decoupled from the
// control loop. A missing backend, a stale result, or a failed backend all
// degrade to "no detection"; the control loop never waits on inference and
// never fails because of it.
type Sampler struct {
	mu       sync.Mutex
	backend  Backend
	interval time.Duration

	last     Detection
	haveLast bool
	lastAt   time.Time
	degraded bool
}

func NewSampler(backend Backend, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Sampler{backend: backend, interval: interval}
}

// Available reports whether a usable backend is attached.
func (s *Sampler) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil && !s.degraded
}

// Sample classifies the frame if the backend is attached, healthy, and due.
// A backend error degrades the sampler for the rest of the mission: logged
// once, then treated as permanently absent rather than retried per frame.
func (s *Sampler) Sample(now time.Time, f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil || s.degraded {
		return
	}
	if !s.lastAt.IsZero() && now.Sub(s.lastAt) < s.interval {
		return
	}
	s.lastAt = now

	det, err := s.backend.Classify(f)
	if err != nil {
		s.degraded = true
		s.haveLast = false
		log.Printf("perception: backend failed, disabling for this mission: %v", err)
		return
	}
	s.last = det
	s.haveLast = true
}

// TryLatest returns the freshest classification, if any. Absent, stale-out,
// or degraded samplers report no detection.
func (s *Sampler) TryLatest() (Detection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveLast || s.degraded {
		return Detection{Label: LabelNoDetection}, false
	}
	return s.last, true
}

// Reset clears the result state for a new mission. A degraded backend stays
// degraded; recovery requires a restart, not a retry loop.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = Detection{}
	s.haveLast = false
	s.lastAt = time.Time{}
}
