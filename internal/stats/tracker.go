// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package stats maintains bounded per-(entity, measurement type) rolling
// windows and derives mean, standard deviation, and rate of change on
// demand.
//
// The store is sharded by key hash so updates for different sensors proceed
// fully in parallel while all access to one window serializes on its shard.
// Retention is hybrid: a window keeps at most MaxSamples entries AND drops
// entries older than MaxAge relative to the newest sample. Eviction runs on
// every insert.
package stats

import (
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/safelink/sentinel/internal/telemetry"
)

// ErrInsufficientData means a statistical quantity is undefined for the
// current window (too few samples, or zero variance for a z-score). It is a
// valid query result, not a failure: callers must treat it as "cannot assert
// a statistical signal", never as zero.
var ErrInsufficientData = errors.New("insufficient data for statistic")

// shardCount is the number of lock stripes. Power of two so the hash can be
// masked instead of taken modulo.
const shardCount = 64

// defaultMinSamples is the minimum window size before a z-score is defined.
const defaultMinSamples = 3

// Retention bounds one rolling window.
type Retention struct {
	// MaxSamples is the maximum number of entries kept per window.
	MaxSamples int `koanf:"max_samples" json:"max_samples"`

	// MaxAge drops entries older than this relative to the newest sample.
	// Zero disables age-based eviction.
	MaxAge time.Duration `koanf:"max_age" json:"max_age"`
}

// DefaultRetention returns the retention used when a measurement type has no
// explicit policy.
func DefaultRetention() Retention {
	return Retention{MaxSamples: 64, MaxAge: time.Hour}
}

// Stats is a point-in-time summary of one rolling window.
type Stats struct {
	Mean        float64
	StdDev      float64
	SampleCount int
	LastValue   float64

	// RateOfChange is Δvalue/Δsecond between the two most recent samples.
	// Nil when fewer than two samples exist or the samples share a
	// timestamp.
	RateOfChange *float64

	minSamples int
}

// ZScore returns how many standard deviations value lies from the window
// mean. Undefined (ErrInsufficientData) when the window holds fewer than the
// minimum sample count or has zero variance — never a divide-by-zero, never
// reported as zero.
func (s Stats) ZScore(value float64) (float64, error) {
	min := s.minSamples
	if min == 0 {
		min = defaultMinSamples
	}
	if s.SampleCount < min {
		return 0, ErrInsufficientData
	}
	if s.StdDev == 0 {
		return 0, ErrInsufficientData
	}
	return (value - s.Mean) / s.StdDev, nil
}

// sample is one window entry.
type sample struct {
	value      float64
	observedAt time.Time
}

// window is the ordered sample sequence for one (entity, type) key.
// Entries are kept time-ordered; out-of-order arrivals are placed by binary
// search rather than assuming monotonic delivery.
type window struct {
	samples   []sample
	retention Retention
}

// insert places s in time order, dropping an exact duplicate (same timestamp
// and value) so redelivered measurements cannot double-count.
func (w *window) insert(s sample) {
	i := sort.Search(len(w.samples), func(i int) bool {
		return w.samples[i].observedAt.After(s.observedAt)
	})
	// Walk back over equal timestamps to detect a duplicate.
	for j := i - 1; j >= 0 && w.samples[j].observedAt.Equal(s.observedAt); j-- {
		if w.samples[j].value == s.value {
			return
		}
	}
	w.samples = append(w.samples, sample{})
	copy(w.samples[i+1:], w.samples[i:])
	w.samples[i] = s
	w.evict()
}

// evict enforces the retention policy. Age is measured against the newest
// sample so replayed history evaluates the same way live traffic did.
func (w *window) evict() {
	if w.retention.MaxAge > 0 && len(w.samples) > 0 {
		newest := w.samples[len(w.samples)-1].observedAt
		cutoff := newest.Add(-w.retention.MaxAge)
		first := sort.Search(len(w.samples), func(i int) bool {
			return !w.samples[i].observedAt.Before(cutoff)
		})
		if first > 0 {
			w.samples = append(w.samples[:0], w.samples[first:]...)
		}
	}
	if w.retention.MaxSamples > 0 && len(w.samples) > w.retention.MaxSamples {
		excess := len(w.samples) - w.retention.MaxSamples
		w.samples = append(w.samples[:0], w.samples[excess:]...)
	}
}

// stats computes the summary for the current window contents.
func (w *window) stats(minSamples int) Stats {
	n := len(w.samples)
	st := Stats{SampleCount: n, minSamples: minSamples}
	if n == 0 {
		return st
	}

	var sum float64
	for _, s := range w.samples {
		sum += s.value
	}
	st.Mean = sum / float64(n)
	st.LastValue = w.samples[n-1].value

	var variance float64
	for _, s := range w.samples {
		d := s.value - st.Mean
		variance += d * d
	}
	variance /= float64(n)
	st.StdDev = math.Sqrt(variance)

	if n >= 2 {
		last, prev := w.samples[n-1], w.samples[n-2]
		dt := last.observedAt.Sub(prev.observedAt).Seconds()
		if dt > 0 {
			roc := (last.value - prev.value) / dt
			st.RateOfChange = &roc
		}
	}
	return st
}

// shard is one lock stripe of the tracker.
type shard struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// Tracker owns every rolling window. Safe for concurrent use.
type Tracker struct {
	shards     [shardCount]shard
	retention  map[telemetry.MeasurementType]Retention
	defaultRet Retention
	minSamples int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMinSamples overrides the minimum window size for a defined z-score.
func WithMinSamples(n int) Option {
	return func(t *Tracker) { t.minSamples = n }
}

// NewTracker creates a tracker. retention maps measurement types to their
// window policy; types without an entry use DefaultRetention.
func NewTracker(retention map[telemetry.MeasurementType]Retention, opts ...Option) *Tracker {
	t := &Tracker{
		retention:  retention,
		defaultRet: DefaultRetention(),
		minSamples: defaultMinSamples,
	}
	for i := range t.shards {
		t.shards[i].windows = make(map[string]*window)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func key(entityID string, mt telemetry.MeasurementType) string {
	return entityID + "\x00" + string(mt)
}

func (t *Tracker) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return &t.shards[h.Sum32()&(shardCount-1)]
}

func (t *Tracker) retentionFor(mt telemetry.MeasurementType) Retention {
	if r, ok := t.retention[mt]; ok {
		return r
	}
	return t.defaultRet
}

// Record appends a measurement to its window and evicts entries outside the
// retention policy. Input is assumed validated at the ingestion boundary.
func (t *Tracker) Record(m *telemetry.Measurement) {
	k := key(m.EntityID, m.Type)
	sh := t.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[k]
	if !ok {
		w = &window{retention: t.retentionFor(m.Type)}
		sh.windows[k] = w
	}
	w.insert(sample{value: m.Value, observedAt: m.ObservedAt})
}

// Stats returns the current summary for one (entity, type) window. A key
// that was never recorded yields a zero-sample summary; its statistical
// quantities are undefined, not zero.
func (t *Tracker) Stats(entityID string, mt telemetry.MeasurementType) Stats {
	k := key(entityID, mt)
	sh := t.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	w, ok := sh.windows[k]
	if !ok {
		return Stats{minSamples: t.minSamples}
	}
	return w.stats(t.minSamples)
}

// Forget drops the window for one key. Used when an entity is
// decommissioned.
func (t *Tracker) Forget(entityID string, mt telemetry.MeasurementType) {
	k := key(entityID, mt)
	sh := t.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.windows, k)
}

// WindowCount returns the number of live windows across all shards.
func (t *Tracker) WindowCount() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].windows)
		t.shards[i].mu.RUnlock()
	}
	return total
}
