// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package alerting drives the alert state machine. One non-resolved alert
// exists per (entity, alert type) key at any time; repeated breaches update
// it instead of duplicating it, and resolution requires a configured number
// of consecutive clear evaluations.
package alerting

import (
	"time"

	"github.com/google/uuid"

	"github.com/safelink/sentinel/internal/telemetry"
	"github.com/safelink/sentinel/internal/threshold"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	// StatusNone is the implicit state before an alert exists. It appears
	// only as the old status of an open event.
	StatusNone         Status = "none"
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Terminal reports whether the status ends the alert occurrence.
func (s Status) Terminal() bool { return s == StatusResolved }

// AlertType is the closed set of alert categories. Measurement-driven types
// mirror the measurement type; device-driven types come from the classifier.
type AlertType string

const (
	AlertTemperature     AlertType = "temperature"
	AlertHumidity        AlertType = "humidity"
	AlertGas             AlertType = "gas"
	AlertLight           AlertType = "light"
	AlertBytesOut        AlertType = "bytes_out"
	AlertConnectionCount AlertType = "connection_count"
	AlertUnknownDevice   AlertType = "unknown_device"
	AlertFlaggedDevice   AlertType = "flagged_device"
)

// TypeForMeasurement maps a measurement type to its alert type.
func TypeForMeasurement(mt telemetry.MeasurementType) AlertType {
	switch mt {
	case telemetry.MeasurementTemperature:
		return AlertTemperature
	case telemetry.MeasurementHumidity:
		return AlertHumidity
	case telemetry.MeasurementGas:
		return AlertGas
	case telemetry.MeasurementLight:
		return AlertLight
	case telemetry.MeasurementBytesOut:
		return AlertBytesOut
	case telemetry.MeasurementConnectionCount:
		return AlertConnectionCount
	default:
		return AlertType(mt)
	}
}

// Alert is one alert occurrence. The manager owns it from open to resolve;
// durable history lives in the external store, not here.
type Alert struct {
	ID              uuid.UUID          `json:"id"`
	EntityID        string             `json:"entity_id"`
	Type            AlertType          `json:"alert_type"`
	Severity        threshold.Severity `json:"severity"`
	Status          Status             `json:"status"`
	Confidence      float64            `json:"confidence"`
	OccurrenceCount int                `json:"occurrence_count"`
	FirstDetectedAt time.Time          `json:"first_detected_at"`
	LastUpdatedAt   time.Time          `json:"last_updated_at"`
	AcknowledgedAt  *time.Time         `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
}

// Event is one committed state transition, emitted for the external store
// and notifiers. Delivery is at-least-once; consumers dedupe on
// (entity_id, alert_type, new_status, timestamp) if they need exactly-once.
type Event struct {
	AlertID         uuid.UUID          `json:"alert_id"`
	EntityID        string             `json:"entity_id"`
	AlertType       AlertType          `json:"alert_type"`
	OldStatus       Status             `json:"old_status"`
	NewStatus       Status             `json:"new_status"`
	Severity        threshold.Severity `json:"severity"`
	OccurrenceCount int                `json:"occurrence_count"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Summary counts live alerts by status and severity for the reporting layer.
type Summary struct {
	Total      int                        `json:"total"`
	ByStatus   map[Status]int             `json:"by_status"`
	BySeverity map[threshold.Severity]int `json:"by_severity"`
}
