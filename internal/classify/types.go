// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package classify maps device identities (MAC, IP, hostname) to a device
// type, vendor, and risk level through a deterministic rule-ordered
// pipeline: vendor-prefix lookup first, hostname pattern match second,
// policy-driven risk assignment last. All rules live in declarative tables;
// adding a vendor or pattern is configuration, not code.
package classify

import (
	"time"
)

// DeviceType is the classified category of a network device.
type DeviceType string

const (
	DeviceRouter         DeviceType = "ROUTER"
	DeviceComputer       DeviceType = "COMPUTER"
	DeviceSmartphone     DeviceType = "SMARTPHONE"
	DeviceTablet         DeviceType = "TABLET"
	DeviceSmartTV        DeviceType = "SMART_TV"
	DeviceSmartSpeaker   DeviceType = "SMART_SPEAKER"
	DeviceSmartLight     DeviceType = "SMART_LIGHT"
	DeviceSmartPlug      DeviceType = "SMART_PLUG"
	DeviceSmartDevice    DeviceType = "SMART_DEVICE"
	DeviceIoT            DeviceType = "IOT_DEVICE"
	DeviceCamera         DeviceType = "CAMERA"
	DeviceThermostat     DeviceType = "THERMOSTAT"
	DeviceNetwork        DeviceType = "NETWORK_DEVICE"
	DeviceVirtualMachine DeviceType = "VIRTUAL_MACHINE"
	DeviceUnknown        DeviceType = "UNKNOWN"
)

// generic reports whether the type is a broad bucket that a more specific
// hostname signal is allowed to override.
func (d DeviceType) generic() bool {
	return d == DeviceIoT || d == DeviceSmartDevice || d == DeviceUnknown
}

// RiskLevel is the policy-assigned risk posture of a device type.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// AtLeast reports whether r is at or above other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

func (r RiskLevel) rank() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Classification is the derived result of classifying one device identity.
// It is recomputed on every request; the core keeps no classification
// history.
type Classification struct {
	MACAddress      string     `json:"mac_address"`
	DeviceType      DeviceType `json:"device_type"`
	Vendor          string     `json:"vendor"`
	RiskLevel       RiskLevel  `json:"risk_level"`
	Confidence      float64    `json:"confidence"`
	IsFlagged       bool       `json:"is_flagged"`
	Recommendations []string   `json:"recommendations,omitempty"`
	ClassifiedAt    time.Time  `json:"classified_at"`
}

// BatchResult is one entry of a batch classification: either a
// classification or a per-item error, never both. A malformed identity in a
// batch fails only its own entry.
type BatchResult struct {
	Classification *Classification `json:"classification,omitempty"`
	Err            error           `json:"-"`
}
