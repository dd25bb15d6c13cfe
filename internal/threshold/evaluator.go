// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package threshold evaluates raw measurement values against per-type
// safety bounds. Evaluation is a pure function over a declarative policy
// table loaded once at startup; adding a measurement type is a table
// extension, not a code change.
package threshold

import (
	"errors"
	"fmt"
	"math"

	"github.com/safelink/sentinel/internal/telemetry"
)

// Severity is the tiered classification of a value relative to policy bounds.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Escalates reports whether s is strictly more severe than other.
func (s Severity) Escalates(other Severity) bool {
	return s.rank() > other.rank()
}

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ErrNoPolicy is returned when no threshold policy exists for a measurement
// type. This is a configuration error, distinct from a "no anomaly" result;
// it is fatal at startup and never expected per-request in a correctly
// configured system.
var ErrNoPolicy = errors.New("no threshold policy for measurement type")

// ErrNonFinite is returned when a NaN or infinite value reaches the
// evaluator. Non-finite input is rejected as invalid, never classified
// into a severity.
var ErrNonFinite = errors.New("non-finite value")

// Policy holds the warning and critical bounds for one measurement type.
// Nil bounds are not enforced (e.g. gas concentration has no low bound).
type Policy struct {
	WarningLow   *float64 `koanf:"warning_low" json:"warning_low,omitempty"`
	WarningHigh  *float64 `koanf:"warning_high" json:"warning_high,omitempty"`
	CriticalLow  *float64 `koanf:"critical_low" json:"critical_low,omitempty"`
	CriticalHigh *float64 `koanf:"critical_high" json:"critical_high,omitempty"`
}

// Validate checks bound ordering: each critical bound must be at least as
// extreme as the corresponding warning bound.
func (p Policy) Validate() error {
	if p.WarningLow != nil && p.WarningHigh != nil && *p.WarningLow >= *p.WarningHigh {
		return fmt.Errorf("warning_low %v >= warning_high %v", *p.WarningLow, *p.WarningHigh)
	}
	if p.CriticalLow != nil && p.CriticalHigh != nil && *p.CriticalLow >= *p.CriticalHigh {
		return fmt.Errorf("critical_low %v >= critical_high %v", *p.CriticalLow, *p.CriticalHigh)
	}
	if p.CriticalHigh != nil && p.WarningHigh != nil && *p.CriticalHigh < *p.WarningHigh {
		return fmt.Errorf("critical_high %v < warning_high %v", *p.CriticalHigh, *p.WarningHigh)
	}
	if p.CriticalLow != nil && p.WarningLow != nil && *p.CriticalLow > *p.WarningLow {
		return fmt.Errorf("critical_low %v > warning_low %v", *p.CriticalLow, *p.WarningLow)
	}
	return nil
}

// Classify returns the severity tier for a finite value. Critical bounds are
// checked before warning bounds so a value past both tiers classifies
// deterministically as critical.
func (p Policy) Classify(value float64) Severity {
	if p.CriticalHigh != nil && value > *p.CriticalHigh {
		return SeverityCritical
	}
	if p.CriticalLow != nil && value < *p.CriticalLow {
		return SeverityCritical
	}
	if p.WarningHigh != nil && value > *p.WarningHigh {
		return SeverityWarning
	}
	if p.WarningLow != nil && value < *p.WarningLow {
		return SeverityWarning
	}
	return SeverityNone
}

// Evaluator maps measurement types to policies. Read-only after construction
// and therefore safe for concurrent use without locking.
type Evaluator struct {
	policies map[telemetry.MeasurementType]Policy
}

// NewEvaluator builds an evaluator from a policy table. Every policy is
// validated; an invalid table is a startup failure.
func NewEvaluator(policies map[telemetry.MeasurementType]Policy) (*Evaluator, error) {
	if len(policies) == 0 {
		return nil, fmt.Errorf("threshold: empty policy table")
	}
	table := make(map[telemetry.MeasurementType]Policy, len(policies))
	for mt, p := range policies {
		if !mt.Valid() {
			return nil, fmt.Errorf("threshold: policy for unknown measurement type %q", mt)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("threshold: policy for %s: %w", mt, err)
		}
		table[mt] = p
	}
	return &Evaluator{policies: table}, nil
}

// Policy returns the policy for a measurement type.
func (e *Evaluator) Policy(mt telemetry.MeasurementType) (Policy, error) {
	p, ok := e.policies[mt]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrNoPolicy, mt)
	}
	return p, nil
}

// Evaluate classifies a value for the given measurement type. A missing
// policy and a non-finite value are errors, never a silent SeverityNone.
func (e *Evaluator) Evaluate(mt telemetry.MeasurementType, value float64) (Severity, error) {
	p, ok := e.policies[mt]
	if !ok {
		return SeverityNone, fmt.Errorf("%w: %s", ErrNoPolicy, mt)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return SeverityNone, fmt.Errorf("%w: %s", ErrNonFinite, mt)
	}
	return p.Classify(value), nil
}
