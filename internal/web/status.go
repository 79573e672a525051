package web

import (
	"sync/atomic"
	"time"

	"fieldsweep/internal/mission"
)

// Status aggregates runtime counters for the status API. Counters are
// atomics so the control loop can update them without taking a lock on
// the request path.
type Status struct {
	startUnixNano int64
	ticks         uint64
	lastTickNano  int64
	simElapsedUs  int64
	listen        atomic.Value // string
	perception    atomic.Value // string: "active", "degraded", "disabled"
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.listen.Store("")
	s.perception.Store("disabled")
	return s
}

func (s *Status) SetStatic(listen string) {
	if listen != "" {
		s.listen.Store(listen)
	}
}

func (s *Status) SetPerceptionState(state string) {
	s.perception.Store(state)
}

// MarkTick records one control cycle. simElapsed is simulated flight time,
// which runs faster or slower than the wall clock.
func (s *Status) MarkTick(nowUTC time.Time, simElapsed time.Duration) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.AddUint64(&s.ticks, 1)
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.StoreInt64(&s.simElapsedUs, simElapsed.Microseconds())
}

type StatusSnapshot struct {
	Service     string           `json:"service"`
	NowUTC      string           `json:"now_utc"`
	UptimeSec   int64            `json:"uptime_sec"`
	Listen      string           `json:"listen"`
	TicksTotal  uint64           `json:"ticks_total"`
	LastTickUTC string           `json:"last_tick_utc,omitempty"`
	SimTimeSec  float64          `json:"sim_time_sec"`
	Perception  string           `json:"perception"`
	Mission     mission.Snapshot `json:"mission"`
}

func (s *Status) Snapshot(nowUTC time.Time, ms mission.Snapshot) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	lastTick := atomic.LoadInt64(&s.lastTickNano)

	snap := StatusSnapshot{
		Service:    "fieldsweep",
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		Listen:     s.listen.Load().(string),
		TicksTotal: atomic.LoadUint64(&s.ticks),
		SimTimeSec: float64(atomic.LoadInt64(&s.simElapsedUs)) / 1e6,
		Perception: s.perception.Load().(string),
		Mission:    ms,
	}
	if lastTick != 0 {
		snap.LastTickUTC = time.Unix(0, lastTick).UTC().Format(time.RFC3339Nano)
	}
	return snap
}
