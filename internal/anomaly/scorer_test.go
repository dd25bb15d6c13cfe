// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package anomaly

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/safelink/sentinel/internal/stats"
	"github.com/safelink/sentinel/internal/telemetry"
	"github.com/safelink/sentinel/internal/threshold"
)

func fp(v float64) *float64 { return &v }

func testScorer(t *testing.T) *Scorer {
	t.Helper()
	ev, err := threshold.NewEvaluator(map[telemetry.MeasurementType]threshold.Policy{
		telemetry.MeasurementTemperature: {
			WarningLow:   fp(5),
			WarningHigh:  fp(45),
			CriticalLow:  fp(0),
			CriticalHigh: fp(60),
		},
		telemetry.MeasurementGas: {
			WarningHigh:  fp(100),
			CriticalHigh: fp(500),
		},
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return NewScorer(ev, DefaultConfig())
}

func tempMeasurement(value float64) *telemetry.Measurement {
	return &telemetry.Measurement{
		EntityID:   "sensor-1",
		Type:       telemetry.MeasurementTemperature,
		Unit:       telemetry.UnitCelsius,
		Value:      value,
		ObservedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestScoreNoSignal(t *testing.T) {
	s := testScorer(t)

	// In-range value, undefined statistics, no rate: nothing anomalous.
	rec, err := s.Score(tempMeasurement(22), stats.Stats{SampleCount: 1})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no anomaly, got %+v", rec)
	}
}

func TestScoreThresholdOnly(t *testing.T) {
	s := testScorer(t)

	rec, err := s.Score(tempMeasurement(48.5), stats.Stats{SampleCount: 1})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec == nil {
		t.Fatal("expected an anomaly")
	}
	if rec.Severity != threshold.SeverityWarning {
		t.Errorf("Severity = %s, want warning", rec.Severity)
	}
	if rec.Kind != KindThreshold {
		t.Errorf("Kind = %s, want threshold", rec.Kind)
	}
	if rec.ZScore != nil {
		t.Errorf("ZScore = %v, want nil when statistics are undefined", *rec.ZScore)
	}
	// 3.5 past the 45 bound with a 15-degree span: 0.5 + 0.5*3.5/15.
	want := 0.5 + 0.5*3.5/15
	if math.Abs(rec.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", rec.Confidence, want)
	}
}

func TestScoreThresholdConfidenceSaturates(t *testing.T) {
	s := testScorer(t)

	// 55 past the critical bound of 60, far beyond the 15-degree span.
	rec, err := s.Score(tempMeasurement(115), stats.Stats{SampleCount: 1})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.Severity != threshold.SeverityCritical {
		t.Errorf("Severity = %s, want critical", rec.Severity)
	}
	if rec.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0 at saturation", rec.Confidence)
	}
}

func TestScoreStatisticalOnly(t *testing.T) {
	s := testScorer(t)

	// 24 degrees is well inside the safety bounds but four sigma above the
	// device's own baseline.
	st := stats.Stats{Mean: 20, StdDev: 1, SampleCount: 10, LastValue: 20}
	rec, err := s.Score(tempMeasurement(24), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a statistical anomaly")
	}
	if rec.Severity != threshold.SeverityWarning {
		t.Errorf("Severity = %s, want warning", rec.Severity)
	}
	if rec.Kind != KindStatistical {
		t.Errorf("Kind = %s, want statistical", rec.Kind)
	}
	if rec.ZScore == nil || *rec.ZScore != 4 {
		t.Errorf("ZScore = %v, want 4", rec.ZScore)
	}
	// One sigma past the 3.0 threshold: 0.5 + 0.25*1.
	if math.Abs(rec.Confidence-0.75) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.75", rec.Confidence)
	}
}

func TestScoreStatisticalBelowThresholdIsQuiet(t *testing.T) {
	s := testScorer(t)

	// Two sigma deviation is below the 3.0 threshold.
	st := stats.Stats{Mean: 20, StdDev: 1, SampleCount: 10}
	rec, err := s.Score(tempMeasurement(22), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no anomaly at |z|=2, got %+v", rec)
	}
}

func TestScoreCombined(t *testing.T) {
	s := testScorer(t)

	// Bound breach and an agreeing four-sigma deviation.
	st := stats.Stats{Mean: 40, StdDev: 1.5, SampleCount: 10}
	rec, err := s.Score(tempMeasurement(46), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.Kind != KindCombined {
		t.Errorf("Kind = %s, want combined", rec.Kind)
	}
	if rec.Severity != threshold.SeverityWarning {
		t.Errorf("Severity = %s, want warning", rec.Severity)
	}
	// threshold 0.5+0.5*1/15, statistical 0.5+0.25*1, combined adds half
	// of the statistical confidence.
	want := (0.5 + 0.5*1/15.0) + 0.5*0.75
	if math.Abs(rec.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", rec.Confidence, want)
	}

	// Both signals together must beat the breach alone.
	alone, err := s.Score(tempMeasurement(46), stats.Stats{SampleCount: 1})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !(rec.Confidence > alone.Confidence) {
		t.Errorf("combined confidence %v not above threshold-only %v", rec.Confidence, alone.Confidence)
	}
}

func TestScoreCombinedRequiresAgreement(t *testing.T) {
	s := testScorer(t)

	// High-side breach but the value is far below the window mean; the
	// statistical signal points the other way and must not boost the score.
	st := stats.Stats{Mean: 60, StdDev: 3, SampleCount: 10}
	rec, err := s.Score(tempMeasurement(46), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.Kind != KindThreshold {
		t.Errorf("Kind = %s, want threshold when signals disagree", rec.Kind)
	}
}

func TestScoreRateSpikeElevatesWarning(t *testing.T) {
	s := testScorer(t)

	// 46 degrees is a warning breach; rising at one degree per second it
	// escalates to critical before the critical bound is reached.
	st := stats.Stats{SampleCount: 2, RateOfChange: fp(1.0)}
	rec, err := s.Score(tempMeasurement(46), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.Severity != threshold.SeverityCritical {
		t.Errorf("Severity = %s, want critical", rec.Severity)
	}
	if rec.Kind != KindRateOfChange {
		t.Errorf("Kind = %s, want rate_of_change", rec.Kind)
	}
}

func TestScoreRateSpikeAloneWarns(t *testing.T) {
	s := testScorer(t)

	st := stats.Stats{SampleCount: 2, RateOfChange: fp(0.6)}
	rec, err := s.Score(tempMeasurement(22), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a rate anomaly")
	}
	if rec.Severity != threshold.SeverityWarning {
		t.Errorf("Severity = %s, want warning", rec.Severity)
	}
	if rec.Kind != KindRateOfChange {
		t.Errorf("Kind = %s, want rate_of_change", rec.Kind)
	}
	// 0.6 against a 0.5 critical magnitude: 0.5 + 0.5*0.1/0.5.
	want := 0.5 + 0.5*0.1/0.5
	if math.Abs(rec.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", rec.Confidence, want)
	}
}

func TestScoreSlowRateIsQuiet(t *testing.T) {
	s := testScorer(t)

	st := stats.Stats{SampleCount: 2, RateOfChange: fp(0.1)}
	rec, err := s.Score(tempMeasurement(22), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no anomaly for a slow drift, got %+v", rec)
	}
}

func TestScoreCriticalKeepsThresholdKind(t *testing.T) {
	s := testScorer(t)

	// Already critical from the bound breach; the rate spike changes
	// nothing.
	st := stats.Stats{SampleCount: 2, RateOfChange: fp(2.0)}
	rec, err := s.Score(tempMeasurement(65), st)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.Severity != threshold.SeverityCritical {
		t.Errorf("Severity = %s, want critical", rec.Severity)
	}
	if rec.Kind != KindThreshold {
		t.Errorf("Kind = %s, want threshold", rec.Kind)
	}
}

func TestScoreGasWarningDoesNotEscalate(t *testing.T) {
	s := testScorer(t)

	m := &telemetry.Measurement{
		EntityID:   "gas-1",
		Type:       telemetry.MeasurementGas,
		Unit:       telemetry.UnitPPM,
		Value:      150,
		ObservedAt: time.Now().UTC(),
	}
	rec, err := s.Score(m, stats.Stats{SampleCount: 1})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rec.Severity != threshold.SeverityWarning {
		t.Errorf("Severity = %s, want warning (150 is past 100, not 500)", rec.Severity)
	}
}

func TestScoreMissingPolicy(t *testing.T) {
	s := testScorer(t)

	m := &telemetry.Measurement{
		EntityID:   "h-1",
		Type:       telemetry.MeasurementHumidity,
		Unit:       telemetry.UnitPercent,
		Value:      50,
		ObservedAt: time.Now().UTC(),
	}
	_, err := s.Score(m, stats.Stats{})
	if !errors.Is(err, threshold.ErrNoPolicy) {
		t.Fatalf("expected ErrNoPolicy, got %v", err)
	}
}

func TestScoreNonFinite(t *testing.T) {
	s := testScorer(t)

	_, err := s.Score(tempMeasurement(math.NaN()), stats.Stats{})
	if !errors.Is(err, threshold.ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", err)
	}
}
