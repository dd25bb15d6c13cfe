// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package telemetry defines the typed ingestion boundary of the core:
// sensor measurements and device identities, with validation that rejects
// malformed input before it reaches any downstream component.
package telemetry

import (
	"time"
)

// MeasurementType identifies the kind of sensor reading.
type MeasurementType string

const (
	// MeasurementTemperature is ambient temperature in degrees Celsius.
	MeasurementTemperature MeasurementType = "TEMPERATURE"

	// MeasurementHumidity is relative humidity in percent.
	MeasurementHumidity MeasurementType = "HUMIDITY"

	// MeasurementGas is gas concentration in parts per million.
	MeasurementGas MeasurementType = "GAS"

	// MeasurementLight is illuminance in lux.
	MeasurementLight MeasurementType = "LIGHT"

	// MeasurementBytesOut is outbound network traffic in bytes per interval.
	MeasurementBytesOut MeasurementType = "BYTES_OUT"

	// MeasurementConnectionCount is the number of open connections.
	MeasurementConnectionCount MeasurementType = "CONNECTION_COUNT"
)

// KnownMeasurementTypes lists every measurement type the core understands.
// Adding a new sensor kind is a table extension here plus a threshold policy
// entry, not a code change in the evaluators.
var KnownMeasurementTypes = []MeasurementType{
	MeasurementTemperature,
	MeasurementHumidity,
	MeasurementGas,
	MeasurementLight,
	MeasurementBytesOut,
	MeasurementConnectionCount,
}

// Valid reports whether t is a known measurement type.
func (t MeasurementType) Valid() bool {
	for _, k := range KnownMeasurementTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Unit is the unit of measure attached to a measurement.
type Unit string

const (
	UnitCelsius Unit = "CELSIUS"
	UnitPercent Unit = "PERCENT"
	UnitPPM     Unit = "PPM"
	UnitLux     Unit = "LUX"
	UnitBytes   Unit = "BYTES"
	UnitCount   Unit = "COUNT"
)

// Measurement is a single immutable sensor reading attributed to an entity.
// Produced by the ingestion boundary; the core consumes it and retains at
// most the rolling window, never the record itself.
type Measurement struct {
	EntityID   string          `json:"entity_id" validate:"required,max=128"`
	Type       MeasurementType `json:"measurement_type" validate:"required"`
	Unit       Unit            `json:"unit,omitempty"`
	Value      float64         `json:"value"`
	ObservedAt time.Time       `json:"observed_at" validate:"required"`
}

// DeviceIdentity is the immutable input to device classification.
// The MAC address is the unique key; IP and hostname are optional evidence.
type DeviceIdentity struct {
	MACAddress string `json:"mac_address" validate:"required,mac"`
	IPAddress  string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	Hostname   string `json:"hostname,omitempty" validate:"omitempty,hostname_rfc1123"`
}
