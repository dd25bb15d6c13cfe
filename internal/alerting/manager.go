// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package alerting

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/safelink/sentinel/internal/anomaly"
	"github.com/safelink/sentinel/internal/classify"
	"github.com/safelink/sentinel/internal/logging"
	"github.com/safelink/sentinel/internal/metrics"
	"github.com/safelink/sentinel/internal/threshold"
)

// ErrNoAlert is returned by explicit lifecycle actions (acknowledge,
// resolve) when no non-resolved alert exists for the key.
var ErrNoAlert = errors.New("no active alert for key")

// shardCount is the number of lock stripes over the alert table.
const shardCount = 64

// Rule holds the per-alert-type lifecycle constants.
type Rule struct {
	// HysteresisCount is the number of consecutive clear evaluations
	// required before an alert auto-resolves.
	HysteresisCount int `koanf:"hysteresis_count"`

	// Cooldown throttles update events for an already-active alert: repeat
	// breaches inside the window update state silently unless severity
	// escalates.
	Cooldown time.Duration `koanf:"cooldown"`
}

// Config holds the lifecycle rules.
type Config struct {
	DefaultRule Rule               `koanf:"default_rule"`
	Overrides   map[AlertType]Rule `koanf:"overrides"`
}

// DefaultConfig returns the lifecycle defaults: three consecutive clears to
// resolve, five-minute update cooldown.
func DefaultConfig() Config {
	return Config{
		DefaultRule: Rule{HysteresisCount: 3, Cooldown: 5 * time.Minute},
	}
}

// Validate rejects rules that would make alerts unresolvable or flapping.
func (c Config) Validate() error {
	check := func(name string, r Rule) error {
		if r.HysteresisCount < 1 {
			return fmt.Errorf("alerting: %s hysteresis_count %d < 1", name, r.HysteresisCount)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("alerting: %s negative cooldown %s", name, r.Cooldown)
		}
		return nil
	}
	if err := check("default_rule", c.DefaultRule); err != nil {
		return err
	}
	for at, r := range c.Overrides {
		if err := check(string(at), r); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) rule(at AlertType) Rule {
	if r, ok := c.Overrides[at]; ok {
		return r
	}
	return c.DefaultRule
}

// entry is the mutable per-key record behind a shard lock.
type entry struct {
	alert       Alert
	clearStreak int
	lastEmitted time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Publisher receives every committed transition. Implementations must be
// safe for concurrent use; the Bus in this package is the production one.
type Publisher interface {
	Publish(ev *Event) error
}

// Manager owns the alert table. Sharded by key hash: transitions for one
// key serialize, different keys proceed in parallel.
type Manager struct {
	cfg    Config
	shards [shardCount]shard
	pub    Publisher
	now    func() time.Time

	// activeCount mirrors the number of non-resolved alerts so emit can
	// update the gauge without re-locking shards.
	activeCount atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher attaches the event publisher. Without one, transitions are
// still computed; events are only returned to the caller.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.pub = p }
}

// NewManager creates a manager with validated lifecycle rules.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.DefaultRule == (Rule{}) {
		cfg.DefaultRule = DefaultConfig().DefaultRule
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, now: time.Now}
	for i := range m.shards {
		m.shards[i].entries = make(map[string]*entry)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func key(entityID string, at AlertType) string {
	return entityID + "\x00" + string(at)
}

func (m *Manager) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return &m.shards[h.Sum32()&(shardCount-1)]
}

// emit publishes the event and logs it. Publishing failures are logged, not
// returned: the transition is already committed and the dispatcher retries
// delivery downstream.
func (m *Manager) emit(ev *Event) *Event {
	logging.Info().
		Str("entity_id", ev.EntityID).
		Str("alert_type", string(ev.AlertType)).
		Str("old_status", string(ev.OldStatus)).
		Str("new_status", string(ev.NewStatus)).
		Str("severity", string(ev.Severity)).
		Int("occurrence_count", ev.OccurrenceCount).
		Msg("alert transition")
	metrics.RecordTransition(string(ev.AlertType), string(ev.NewStatus), int(m.activeCount.Load()))
	if m.pub != nil {
		if err := m.pub.Publish(ev); err != nil {
			logging.Error().Err(err).
				Str("entity_id", ev.EntityID).
				Str("alert_type", string(ev.AlertType)).
				Msg("publish alert event")
		}
	}
	return ev
}

func eventFor(a *Alert, old Status, at time.Time) *Event {
	return &Event{
		AlertID:         a.ID,
		EntityID:        a.EntityID,
		AlertType:       a.Type,
		OldStatus:       old,
		NewStatus:       a.Status,
		Severity:        a.Severity,
		OccurrenceCount: a.OccurrenceCount,
		Timestamp:       at,
	}
}

// ProcessAnomaly feeds one scored anomaly into the state machine. A nil
// record (nothing anomalous) counts as a clear evaluation for the key and
// must be reported through ProcessClear instead. Returns the emitted event,
// or nil when the breach only updated state inside the cooldown window.
func (m *Manager) ProcessAnomaly(rec *anomaly.Record) *Event {
	at := TypeForMeasurement(rec.Type)
	return m.breach(rec.EntityID, at, rec.Severity, rec.Confidence, rec.DetectedAt)
}

// ProcessClassification opens or updates a device alert for a flagged
// classification. Unflagged classifications are ignored.
func (m *Manager) ProcessClassification(cls *classify.Classification) *Event {
	if !cls.IsFlagged {
		return nil
	}
	at := AlertFlaggedDevice
	if cls.DeviceType == classify.DeviceUnknown {
		at = AlertUnknownDevice
	}
	severity := threshold.SeverityWarning
	if cls.RiskLevel.AtLeast(classify.RiskCritical) {
		severity = threshold.SeverityCritical
	}
	return m.breach(cls.MACAddress, at, severity, cls.Confidence, cls.ClassifiedAt)
}

// breach is the none→active and active→active(update) path.
func (m *Manager) breach(entityID string, at AlertType, severity threshold.Severity, confidence float64, detectedAt time.Time) *Event {
	k := key(entityID, at)
	sh := m.shardFor(k)
	rule := m.cfg.rule(at)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[k]
	if !ok || e.alert.Status.Terminal() {
		// Fresh occurrence: resolved is terminal, a new breach opens a new
		// alert instance with its own identity.
		e = &entry{alert: Alert{
			ID:              uuid.New(),
			EntityID:        entityID,
			Type:            at,
			Severity:        severity,
			Status:          StatusActive,
			Confidence:      confidence,
			OccurrenceCount: 1,
			FirstDetectedAt: detectedAt,
			LastUpdatedAt:   detectedAt,
		}}
		sh.entries[k] = e
		e.lastEmitted = detectedAt
		m.activeCount.Add(1)
		return m.emit(eventFor(&e.alert, StatusNone, detectedAt))
	}

	// Dedup path: one non-resolved alert per key, updated in place.
	old := e.alert.Status
	escalated := severity.Escalates(e.alert.Severity)
	if escalated {
		// Severity only escalates automatically; downgrade happens through
		// hysteresis resolution.
		e.alert.Severity = severity
	}
	if confidence > e.alert.Confidence {
		e.alert.Confidence = confidence
	}
	e.alert.OccurrenceCount++
	e.alert.LastUpdatedAt = detectedAt
	e.clearStreak = 0

	if !escalated && detectedAt.Sub(e.lastEmitted) < rule.Cooldown {
		return nil
	}
	e.lastEmitted = detectedAt
	return m.emit(eventFor(&e.alert, old, detectedAt))
}

// ProcessClear records one non-anomalous evaluation for the key. The alert
// resolves only after the configured number of consecutive clears.
func (m *Manager) ProcessClear(entityID string, at AlertType, observedAt time.Time) *Event {
	k := key(entityID, at)
	sh := m.shardFor(k)
	rule := m.cfg.rule(at)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[k]
	if !ok || e.alert.Status.Terminal() {
		return nil
	}

	e.clearStreak++
	if e.clearStreak < rule.HysteresisCount {
		return nil
	}

	old := e.alert.Status
	e.alert.Status = StatusResolved
	e.alert.LastUpdatedAt = observedAt
	resolvedAt := observedAt
	e.alert.ResolvedAt = &resolvedAt
	m.activeCount.Add(-1)
	return m.emit(eventFor(&e.alert, old, observedAt))
}

// Acknowledge marks the active alert for the key as acknowledged. External
// action only; acknowledged alerts still auto-resolve on condition clearing
// and still count repeat breaches.
func (m *Manager) Acknowledge(entityID string, at AlertType) (*Event, error) {
	k := key(entityID, at)
	sh := m.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[k]
	if !ok || e.alert.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoAlert, entityID, at)
	}
	if e.alert.Status == StatusAcknowledged {
		return nil, nil
	}

	now := m.now().UTC()
	old := e.alert.Status
	e.alert.Status = StatusAcknowledged
	e.alert.LastUpdatedAt = now
	ackAt := now
	e.alert.AcknowledgedAt = &ackAt
	return m.emit(eventFor(&e.alert, old, now)), nil
}

// Resolve resolves the alert for the key by explicit external action,
// bypassing hysteresis.
func (m *Manager) Resolve(entityID string, at AlertType) (*Event, error) {
	k := key(entityID, at)
	sh := m.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[k]
	if !ok || e.alert.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoAlert, entityID, at)
	}

	now := m.now().UTC()
	old := e.alert.Status
	e.alert.Status = StatusResolved
	e.alert.LastUpdatedAt = now
	resolvedAt := now
	e.alert.ResolvedAt = &resolvedAt
	m.activeCount.Add(-1)
	return m.emit(eventFor(&e.alert, old, now)), nil
}

// Get returns a copy of the current alert for the key.
func (m *Manager) Get(entityID string, at AlertType) (Alert, bool) {
	k := key(entityID, at)
	sh := m.shardFor(k)

	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[k]
	if !ok {
		return Alert{}, false
	}
	return e.alert, true
}

// Active returns copies of every non-resolved alert across all shards.
func (m *Manager) Active() []Alert {
	var out []Alert
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		for _, e := range sh.entries {
			if !e.alert.Status.Terminal() {
				out = append(out, e.alert)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Summary aggregates alert counts by status and severity, resolved included
// until the entry is garbage-collected by a new occurrence.
func (m *Manager) Summary() Summary {
	s := Summary{
		ByStatus:   make(map[Status]int),
		BySeverity: make(map[threshold.Severity]int),
	}
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		for _, e := range sh.entries {
			s.Total++
			s.ByStatus[e.alert.Status]++
			s.BySeverity[e.alert.Severity]++
		}
		sh.mu.RUnlock()
	}
	return s
}
