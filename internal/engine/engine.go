// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package engine is the facade over the telemetry core. One Ingest call
// runs the full pipeline for a measurement: boundary validation, window
// update, anomaly scoring, alert lifecycle. Device identities flow through
// Classify into the same alert table.
//
// Calls for different (entity, measurement type) keys run fully in
// parallel; calls for the same key serialize on a lock stripe so window
// state and alert state advance together.
package engine

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/safelink/sentinel/internal/alerting"
	"github.com/safelink/sentinel/internal/anomaly"
	"github.com/safelink/sentinel/internal/classify"
	"github.com/safelink/sentinel/internal/logging"
	"github.com/safelink/sentinel/internal/metrics"
	"github.com/safelink/sentinel/internal/stats"
	"github.com/safelink/sentinel/internal/telemetry"
)

// stripeCount is the number of pipeline lock stripes.
const stripeCount = 64

// Engine wires the core components together.
type Engine struct {
	tracker    *stats.Tracker
	scorer     *anomaly.Scorer
	classifier *classify.Classifier
	manager    *alerting.Manager

	stripes [stripeCount]sync.Mutex
}

// New creates an engine over fully constructed components.
func New(tracker *stats.Tracker, scorer *anomaly.Scorer, classifier *classify.Classifier, manager *alerting.Manager) *Engine {
	return &Engine{
		tracker:    tracker,
		scorer:     scorer,
		classifier: classifier,
		manager:    manager,
	}
}

// Result is the outcome of ingesting one measurement. Record is nil when
// nothing was anomalous; Event is nil when no alert transition was emitted
// (no alert involved, or a deduplicated update inside the cooldown window).
type Result struct {
	Record *anomaly.Record
	Event  *alerting.Event
	Err    error
}

func (e *Engine) stripeFor(entityID string, mt telemetry.MeasurementType) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(mt))
	return &e.stripes[h.Sum32()&(stripeCount-1)]
}

// Ingest runs the pipeline for one measurement. Malformed input is rejected
// with telemetry.ErrInvalidMeasurement before touching any state.
func (e *Engine) Ingest(m *telemetry.Measurement) Result {
	start := time.Now()

	if err := telemetry.ValidateMeasurement(m); err != nil {
		typeLabel := "unknown"
		if m != nil {
			typeLabel = string(m.Type)
		}
		metrics.RecordRejection(typeLabel, "invalid")
		return Result{Err: err}
	}

	mu := e.stripeFor(m.EntityID, m.Type)
	mu.Lock()
	defer mu.Unlock()

	e.tracker.Record(m)
	st := e.tracker.Stats(m.EntityID, m.Type)

	rec, err := e.scorer.Score(m, st)
	if err != nil {
		metrics.RecordRejection(string(m.Type), "score")
		return Result{Err: err}
	}

	var ev *alerting.Event
	if rec != nil {
		metrics.RecordAnomaly(string(rec.Kind), string(rec.Severity))
		logging.Debug().
			Str("entity_id", rec.EntityID).
			Str("measurement_type", string(rec.Type)).
			Str("severity", string(rec.Severity)).
			Str("anomaly_kind", string(rec.Kind)).
			Float64("confidence", rec.Confidence).
			Msg("anomaly detected")
		ev = e.manager.ProcessAnomaly(rec)
	} else {
		ev = e.manager.ProcessClear(m.EntityID, alerting.TypeForMeasurement(m.Type), m.ObservedAt)
	}

	metrics.RecordMeasurement(string(m.Type), time.Since(start))
	metrics.LiveWindows.Set(float64(e.tracker.WindowCount()))
	return Result{Record: rec, Event: ev}
}

// IngestBatch ingests an ordered sequence and returns one result per input
// in the same order. A failing entry fails only itself. The batch stops
// between entries when the context is canceled; results computed so far are
// returned with ctx.Err().
func (e *Engine) IngestBatch(ctx context.Context, ms []telemetry.Measurement) ([]Result, error) {
	results := make([]Result, 0, len(ms))
	for i := range ms {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, e.Ingest(&ms[i]))
	}
	return results, nil
}

// Classify classifies one device identity and feeds a flagged result into
// the alert table. Returns the classification and the alert event, if any.
func (e *Engine) Classify(identity *telemetry.DeviceIdentity) (*classify.Classification, *alerting.Event, error) {
	cls, err := e.classifier.Classify(identity)
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordClassification(string(cls.DeviceType), string(cls.RiskLevel), cls.IsFlagged)

	var ev *alerting.Event
	if cls.IsFlagged {
		ev = e.manager.ProcessClassification(cls)
	}
	return cls, ev, nil
}

// ClassifyBatch classifies an ordered sequence of identities. Flagged
// results feed the alert table exactly as in Classify.
func (e *Engine) ClassifyBatch(ctx context.Context, identities []telemetry.DeviceIdentity) ([]classify.BatchResult, error) {
	results := make([]classify.BatchResult, 0, len(identities))
	for i := range identities {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		cls, _, err := e.Classify(&identities[i])
		if err != nil {
			results = append(results, classify.BatchResult{Err: err})
			continue
		}
		results = append(results, classify.BatchResult{Classification: cls})
	}
	return results, nil
}

// Stats returns the current window summary for one key.
func (e *Engine) Stats(entityID string, mt telemetry.MeasurementType) stats.Stats {
	return e.tracker.Stats(entityID, mt)
}

// Acknowledge marks the alert for the key as acknowledged.
func (e *Engine) Acknowledge(entityID string, at alerting.AlertType) (*alerting.Event, error) {
	return e.manager.Acknowledge(entityID, at)
}

// Resolve resolves the alert for the key by explicit action.
func (e *Engine) Resolve(entityID string, at alerting.AlertType) (*alerting.Event, error) {
	return e.manager.Resolve(entityID, at)
}

// ActiveAlerts returns every non-resolved alert.
func (e *Engine) ActiveAlerts() []alerting.Alert {
	return e.manager.Active()
}

// AlertSummary aggregates alert counts for the reporting layer.
func (e *Engine) AlertSummary() alerting.Summary {
	return e.manager.Summary()
}

// Forget drops the rolling window for a decommissioned entity key.
func (e *Engine) Forget(entityID string, mt telemetry.MeasurementType) {
	mu := e.stripeFor(entityID, mt)
	mu.Lock()
	defer mu.Unlock()
	e.tracker.Forget(entityID, mt)
}
