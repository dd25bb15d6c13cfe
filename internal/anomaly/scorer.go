// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package anomaly combines the threshold verdict with the rolling
// statistical baseline into a single confidence-scored anomaly record.
//
// Combination rules, in order:
//  1. The threshold severity is the primary signal.
//  2. Severity none + defined |z| past the z threshold emits a
//     warning-severity statistical anomaly.
//  3. A threshold breach with an agreeing statistical signal (same
//     direction) becomes kind=combined with confidence boosted toward 1.
//  4. A rate-of-change spike past the configured critical magnitude
//     elevates warning to critical (kind=rate_of_change); alone it emits a
//     warning.
//
// Severity none with no statistical or rate signal never produces a record.
package anomaly

import (
	"errors"
	"math"
	"time"

	"github.com/safelink/sentinel/internal/stats"
	"github.com/safelink/sentinel/internal/telemetry"
	"github.com/safelink/sentinel/internal/threshold"
)

// Kind identifies which signals produced an anomaly.
type Kind string

const (
	KindThreshold    Kind = "threshold"
	KindStatistical  Kind = "statistical"
	KindRateOfChange Kind = "rate_of_change"
	KindCombined     Kind = "combined"
)

// Record is one scored anomaly. Produced here, consumed exactly once by the
// alert lifecycle manager, never retained by the core.
type Record struct {
	EntityID   string                    `json:"entity_id"`
	Type       telemetry.MeasurementType `json:"measurement_type"`
	Severity   threshold.Severity        `json:"severity"`
	ZScore     *float64                  `json:"z_score,omitempty"`
	Confidence float64                   `json:"confidence"`
	Kind       Kind                      `json:"anomaly_kind"`
	DetectedAt time.Time                 `json:"detected_at"`
}

// Config holds the scorer's tunables. The defaults are reasonable starting
// points, not invariants; deployments tune them per site.
type Config struct {
	// ZScoreThreshold is the minimum |z| asserting a statistical anomaly.
	ZScoreThreshold float64 `koanf:"z_score_threshold"`

	// SaturationSpans maps measurement types to the distance past a bound
	// at which threshold confidence saturates at 1.0.
	SaturationSpans map[telemetry.MeasurementType]float64 `koanf:"saturation_spans"`

	// DefaultSaturationSpan applies to types without an explicit span.
	DefaultSaturationSpan float64 `koanf:"default_saturation_span"`

	// RateCriticalMagnitudes maps measurement types to the |Δvalue/Δs|
	// beyond which a rate-of-change spike is itself an anomaly signal.
	// Types without an entry have no rate rule.
	RateCriticalMagnitudes map[telemetry.MeasurementType]float64 `koanf:"rate_critical_magnitudes"`
}

// DefaultConfig returns the scorer defaults: 3-sigma statistical threshold
// and a rapid-rise rule for temperature and gas.
func DefaultConfig() Config {
	return Config{
		ZScoreThreshold:       3.0,
		DefaultSaturationSpan: 10.0,
		SaturationSpans: map[telemetry.MeasurementType]float64{
			telemetry.MeasurementTemperature:     15,
			telemetry.MeasurementHumidity:        10,
			telemetry.MeasurementGas:             500,
			telemetry.MeasurementBytesOut:        10_000_000,
			telemetry.MeasurementConnectionCount: 100,
		},
		RateCriticalMagnitudes: map[telemetry.MeasurementType]float64{
			telemetry.MeasurementTemperature: 0.5, // °C per second
			telemetry.MeasurementGas:         10,  // ppm per second
		},
	}
}

// Scorer combines threshold and statistical signals. Read-only after
// construction; safe for concurrent use.
type Scorer struct {
	evaluator *threshold.Evaluator
	cfg       Config
}

// NewScorer creates a scorer over the given threshold evaluator.
func NewScorer(evaluator *threshold.Evaluator, cfg Config) *Scorer {
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = 3.0
	}
	if cfg.DefaultSaturationSpan <= 0 {
		cfg.DefaultSaturationSpan = 10.0
	}
	return &Scorer{evaluator: evaluator, cfg: cfg}
}

// breachDirection is the side of the policy a value breached.
type breachDirection int

const (
	breachNone breachDirection = iota
	breachHigh
	breachLow
)

// Score evaluates one measurement against its policy and window statistics.
// Returns nil when nothing is anomalous. A missing policy or non-finite
// value is an error (configuration / invalid input), never a severity.
func (s *Scorer) Score(m *telemetry.Measurement, st stats.Stats) (*Record, error) {
	severity, err := s.evaluator.Evaluate(m.Type, m.Value)
	if err != nil {
		return nil, err
	}
	policy, err := s.evaluator.Policy(m.Type)
	if err != nil {
		return nil, err
	}

	// Statistical signal. Undefined stats mean "cannot assert", not zero.
	var zScore *float64
	statSignal := false
	if z, zerr := st.ZScore(m.Value); zerr == nil {
		zScore = &z
		statSignal = math.Abs(z) >= s.cfg.ZScoreThreshold
	} else if !errors.Is(zerr, stats.ErrInsufficientData) {
		return nil, zerr
	}

	// Rate-of-change signal.
	rateSpike := false
	if critical, ok := s.cfg.RateCriticalMagnitudes[m.Type]; ok && st.RateOfChange != nil {
		rateSpike = math.Abs(*st.RateOfChange) >= critical
	}

	rec := &Record{
		EntityID:   m.EntityID,
		Type:       m.Type,
		ZScore:     zScore,
		DetectedAt: m.ObservedAt,
	}

	switch severity {
	case threshold.SeverityNone:
		switch {
		case statSignal:
			rec.Severity = threshold.SeverityWarning
			rec.Kind = KindStatistical
			rec.Confidence = s.statConfidence(*zScore)
		case rateSpike:
			rec.Severity = threshold.SeverityWarning
			rec.Kind = KindRateOfChange
			rec.Confidence = s.rateConfidence(m.Type, *st.RateOfChange)
		default:
			// No threshold, statistical, or rate signal: no anomaly.
			return nil, nil
		}
	default:
		rec.Severity = severity
		rec.Kind = KindThreshold
		rec.Confidence = s.thresholdConfidence(policy, m.Type, m.Value, severity)

		if statSignal && agrees(direction(policy, m.Value, severity), *zScore) {
			rec.Kind = KindCombined
			rec.Confidence = clamp01(rec.Confidence + 0.5*s.statConfidence(*zScore))
		}
	}

	// A rate spike elevates a warning to critical even without a critical
	// bound breach (e.g. rapid temperature rise).
	if rateSpike && rec.Severity == threshold.SeverityWarning {
		rec.Severity = threshold.SeverityCritical
		rec.Kind = KindRateOfChange
		rec.Confidence = clamp01(rec.Confidence + 0.2)
	}

	return rec, nil
}

// thresholdConfidence interpolates linearly from 0.5 at the breached bound
// to 1.0 at the saturation point, clamped to [0, 1].
func (s *Scorer) thresholdConfidence(p threshold.Policy, mt telemetry.MeasurementType, value float64, severity threshold.Severity) float64 {
	bound, dir := breachedBound(p, value, severity)
	if dir == breachNone {
		return 0.5
	}
	span := s.cfg.DefaultSaturationSpan
	if v, ok := s.cfg.SaturationSpans[mt]; ok && v > 0 {
		span = v
	}
	distance := value - bound
	if dir == breachLow {
		distance = bound - value
	}
	return clamp01(0.5 + 0.5*distance/span)
}

// statConfidence grows with |z| from 0.5 at the z threshold, saturating two
// sigma past it.
func (s *Scorer) statConfidence(z float64) float64 {
	excess := math.Abs(z) - s.cfg.ZScoreThreshold
	return clamp01(0.5 + 0.25*excess)
}

// rateConfidence grows with how far the rate exceeds the critical magnitude.
func (s *Scorer) rateConfidence(mt telemetry.MeasurementType, rate float64) float64 {
	critical := s.cfg.RateCriticalMagnitudes[mt]
	if critical <= 0 {
		return 0.5
	}
	return clamp01(0.5 + 0.5*(math.Abs(rate)-critical)/critical)
}

// breachedBound returns the nearest violated bound for the given severity
// tier and which side it sits on.
func breachedBound(p threshold.Policy, value float64, severity threshold.Severity) (float64, breachDirection) {
	if severity == threshold.SeverityCritical {
		if p.CriticalHigh != nil && value > *p.CriticalHigh {
			return *p.CriticalHigh, breachHigh
		}
		if p.CriticalLow != nil && value < *p.CriticalLow {
			return *p.CriticalLow, breachLow
		}
	}
	if p.WarningHigh != nil && value > *p.WarningHigh {
		return *p.WarningHigh, breachHigh
	}
	if p.WarningLow != nil && value < *p.WarningLow {
		return *p.WarningLow, breachLow
	}
	return 0, breachNone
}

func direction(p threshold.Policy, value float64, severity threshold.Severity) breachDirection {
	_, dir := breachedBound(p, value, severity)
	return dir
}

// agrees reports whether the statistical signal points the same way as the
// breach: a high breach with a positive z, or a low breach with a negative z.
func agrees(dir breachDirection, z float64) bool {
	switch dir {
	case breachHigh:
		return z > 0
	case breachLow:
		return z < 0
	default:
		return false
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
