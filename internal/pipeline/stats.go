package pipeline

import (
	"slices"
	"sync"
	"time"
)

// convertSample is one converted document.
type convertSample struct {
	at        time.Time
	ms        int64
	revisions int
	warnings  int
}

// StatsSnapshot aggregates the conversions still inside the window.
type StatsSnapshot struct {
	Count     int `json:"count"`
	Revisions int `json:"revisions"`
	Warnings  int `json:"warnings"`

	MinMs         int64   `json:"min_ms"`
	MaxMs         int64   `json:"max_ms"`
	AvgMs         float64 `json:"avg_ms"`
	P50Ms         float64 `json:"p50_ms"`
	P95Ms         float64 `json:"p95_ms"`
	P99Ms         float64 `json:"p99_ms"`
	MsPerRevision float64 `json:"ms_per_revision"`
}

// ConvertStats keeps a rolling window of document conversions. A sample
// is either one persisted page (all of its revisions) or one ad-hoc API
// conversion.
type ConvertStats struct {
	mu      sync.Mutex
	samples []convertSample
	window  time.Duration
}

func NewConvertStats(window time.Duration) *ConvertStats {
	if window <= 0 {
		window = time.Hour
	}
	return &ConvertStats{
		samples: make([]convertSample, 0, 256),
		window:  window,
	}
}

// Record adds a conversion that took ms milliseconds.
func (s *ConvertStats) Record(ms int64, revisions, warnings int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.expireLocked(now)
	s.samples = append(s.samples, convertSample{
		at:        now,
		ms:        max(ms, 0),
		revisions: max(revisions, 1),
		warnings:  max(warnings, 0),
	})
}

// Since records a conversion that started at start.
func (s *ConvertStats) Since(start time.Time, revisions, warnings int) {
	s.Record(time.Since(start).Milliseconds(), revisions, warnings)
}

func (s *ConvertStats) Snapshot() StatsSnapshot {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)
	if len(s.samples) == 0 {
		return StatsSnapshot{}
	}

	snap := StatsSnapshot{Count: len(s.samples)}
	ms := make([]int64, len(s.samples))
	var total int64
	for i, sm := range s.samples {
		ms[i] = sm.ms
		total += sm.ms
		snap.Revisions += sm.revisions
		snap.Warnings += sm.warnings
	}
	slices.Sort(ms)

	snap.MinMs = ms[0]
	snap.MaxMs = ms[len(ms)-1]
	snap.AvgMs = float64(total) / float64(len(ms))
	snap.P50Ms = percentile(ms, 50)
	snap.P95Ms = percentile(ms, 95)
	snap.P99Ms = percentile(ms, 99)
	snap.MsPerRevision = float64(total) / float64(snap.Revisions)
	return snap
}

// expireLocked drops samples older than the window. Samples are appended
// in time order, so the expired ones form a prefix.
func (s *ConvertStats) expireLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	i, _ := slices.BinarySearchFunc(s.samples, cutoff, func(sm convertSample, t time.Time) int {
		return sm.at.Compare(t)
	})
	if i > 0 {
		s.samples = slices.Delete(s.samples, 0, i)
	}
}

// percentile interpolates between the two nearest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[n-1])
	}
	pos := float64(n-1) * pct / 100
	lo := int(pos)
	if lo+1 >= n {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + float64(sorted[lo+1]-sorted[lo])*frac
}
