package metrics

import (
	"sync/atomic"
	"time"
)

// ID identifies a single counter or latency histogram.
type ID uint16

const (
	ResolveProceed ID = iota
	ResolveRedirect
	RedirectUnauthenticated
	RedirectSessionExpired
	RedirectModuleDisabled
	RedirectForbidden
	RedirectLoadFailed
	ResolveSuperseded
	HydrationLoad
	HydrationCoalesced
	HydrationFailure
	SessionRestored
	SessionInvalidated
	PlanCallIssued
	PlanCallFailed
	ResolveLatency
	PlanLatency
	idCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// Config controls which instruments the recorder keeps hot.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type histogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so concurrent
// Inc calls on different IDs do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Recorder stores counters and latency histograms for the navigation engine.
// All write paths are atomic and allocation-free.
type Recorder struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	histograms    [idCount]histogram
}

// Snapshot is a point-in-time copy of all recorded values.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

// New builds a recorder. Latency histograms are only active when both
// flags are set.
func New(cfg Config) *Recorder {
	return &Recorder{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the recorder accepts writes.
func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}

// LatencyEnabled reports whether Observe records anything.
func (r *Recorder) LatencyEnabled() bool {
	return r != nil && r.enableLatency
}

// Inc adds one to the counter. No-op on nil or disabled recorders.
func (r *Recorder) Inc(id ID) {
	r.Add(id, 1)
}

// Add adds n to the counter. No-op on nil or disabled recorders.
func (r *Recorder) Add(id ID, n uint64) {
	if r == nil || !r.enabled || id >= idCount || n == 0 {
		return
	}
	atomic.AddUint64(&r.counters[id].value, n)
}

// Observe records a latency sample into the matching histogram bucket.
// Only latency IDs are accepted.
func (r *Recorder) Observe(id ID, d time.Duration) {
	if r == nil || !r.enabled || !r.enableLatency || id >= idCount {
		return
	}
	if !isLatencyID(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&r.histograms[id].buckets[b], 1)
}

// Value reads a single counter.
func (r *Recorder) Value(id ID) uint64 {
	if r == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies every counter and active histogram into fresh maps.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil || !r.enabled {
		return Snapshot{
			Counters:   map[ID]uint64{},
			Histograms: map[ID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[ID]uint64, int(idCount)),
		Histograms: make(map[ID][]uint64, 2),
	}

	for id := ID(0); id < idCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&r.counters[id].value)
	}

	if r.enableLatency {
		for id := ID(0); id < idCount; id++ {
			if !isLatencyID(id) {
				continue
			}
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&r.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyID(id ID) bool {
	return id == ResolveLatency || id == PlanLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
