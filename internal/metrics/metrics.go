// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package metrics instruments the telemetry core with Prometheus metrics:
// ingestion throughput, anomaly rates by kind and severity, alert table
// state, classifier activity, and sink delivery health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	MeasurementsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_measurements_processed_total",
			Help: "Total measurements accepted by the core",
		},
		[]string{"measurement_type"},
	)

	MeasurementsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_measurements_rejected_total",
			Help: "Total measurements rejected at the ingestion boundary",
		},
		[]string{"measurement_type", "reason"},
	)

	ScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_score_duration_seconds",
			Help:    "Duration of the record-and-score path per measurement",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10µs .. ~160ms
		},
	)

	// Anomaly metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_anomalies_detected_total",
			Help: "Total anomalies produced by the scorer",
		},
		[]string{"anomaly_kind", "severity"},
	)

	// Alert lifecycle metrics
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_active_alerts",
			Help: "Current number of non-resolved alerts",
		},
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alert_transitions_total",
			Help: "Total committed alert state transitions",
		},
		[]string{"alert_type", "new_status"},
	)

	// Classifier metrics
	DevicesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_devices_classified_total",
			Help: "Total device classifications by type and risk",
		},
		[]string{"device_type", "risk_level"},
	)

	DevicesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_devices_flagged_total",
			Help: "Total classifications flagged for review",
		},
	)

	// Sink delivery metrics
	SinkDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_sink_deliveries_total",
			Help: "Alert event deliveries to the external sink by outcome",
		},
		[]string{"outcome"}, // "ok", "retry", "nack"
	)

	SinkBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_sink_breaker_open",
			Help: "1 when the sink circuit breaker is open, 0 otherwise",
		},
	)

	// Window metrics
	LiveWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_rolling_windows",
			Help: "Current number of live rolling windows",
		},
	)
)

// RecordMeasurement counts one accepted measurement and its scoring latency.
func RecordMeasurement(measurementType string, duration time.Duration) {
	MeasurementsProcessed.WithLabelValues(measurementType).Inc()
	ScoreDuration.Observe(duration.Seconds())
}

// RecordRejection counts one measurement rejected at the boundary.
func RecordRejection(measurementType, reason string) {
	MeasurementsRejected.WithLabelValues(measurementType, reason).Inc()
}

// RecordAnomaly counts one scored anomaly.
func RecordAnomaly(kind, severity string) {
	AnomaliesDetected.WithLabelValues(kind, severity).Inc()
}

// RecordTransition counts one committed alert transition and keeps the
// active-alert gauge in step.
func RecordTransition(alertType, newStatus string, activeCount int) {
	AlertTransitions.WithLabelValues(alertType, newStatus).Inc()
	ActiveAlerts.Set(float64(activeCount))
}

// RecordClassification counts one device classification.
func RecordClassification(deviceType, riskLevel string, flagged bool) {
	DevicesClassified.WithLabelValues(deviceType, riskLevel).Inc()
	if flagged {
		DevicesFlagged.Inc()
	}
}

// RecordSinkDelivery counts one sink delivery outcome.
func RecordSinkDelivery(outcome string) {
	SinkDeliveries.WithLabelValues(outcome).Inc()
}

// SetBreakerOpen reflects the sink circuit breaker state.
func SetBreakerOpen(open bool) {
	if open {
		SinkBreakerState.Set(1)
	} else {
		SinkBreakerState.Set(0)
	}
}
