// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

// Package config loads the process configuration with layered precedence:
// built-in defaults, then an optional YAML file, then SENTINEL_-prefixed
// environment variables. The result is immutable after Load and safe for
// concurrent reads.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/safelink/sentinel/internal/alerting"
	"github.com/safelink/sentinel/internal/anomaly"
	"github.com/safelink/sentinel/internal/classify"
	"github.com/safelink/sentinel/internal/logging"
	"github.com/safelink/sentinel/internal/stats"
	"github.com/safelink/sentinel/internal/telemetry"
	"github.com/safelink/sentinel/internal/threshold"
)

// Config is the root configuration.
type Config struct {
	Logging    logging.Config              `koanf:"logging"`
	Server     ServerConfig                `koanf:"server"`
	Thresholds ThresholdConfig             `koanf:"thresholds"`
	Stats      StatsConfig                 `koanf:"stats"`
	Anomaly    anomaly.Config              `koanf:"anomaly"`
	Classify   classify.Config             `koanf:"classify"`
	Alerting   alerting.Config             `koanf:"alerting"`
	Dispatch   alerting.DispatcherConfig   `koanf:"dispatch"`
}

// ServerConfig holds the process-level settings.
type ServerConfig struct {
	// MetricsAddr is the Prometheus listener address.
	MetricsAddr string `koanf:"metrics_addr" validate:"required,hostname_port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
}

// ThresholdConfig carries the per-measurement-type policy table.
type ThresholdConfig struct {
	Policies map[telemetry.MeasurementType]threshold.Policy `koanf:"policies"`
}

// StatsConfig carries the rolling-window retention policy.
type StatsConfig struct {
	// Default applies to measurement types without an override.
	Default stats.Retention `koanf:"default"`

	// PerType overrides retention per measurement type.
	PerType map[telemetry.MeasurementType]stats.Retention `koanf:"per_type"`

	// MinSamples is the minimum window size for a defined z-score.
	MinSamples int `koanf:"min_samples" validate:"min=2"`
}

func fp(v float64) *float64 { return &v }

// DefaultThresholdPolicies returns the built-in safety bounds.
func DefaultThresholdPolicies() map[telemetry.MeasurementType]threshold.Policy {
	return map[telemetry.MeasurementType]threshold.Policy{
		telemetry.MeasurementTemperature: {
			WarningLow:   fp(5),
			WarningHigh:  fp(45),
			CriticalLow:  fp(0),
			CriticalHigh: fp(60),
		},
		telemetry.MeasurementHumidity: {
			WarningLow:   fp(20),
			WarningHigh:  fp(80),
			CriticalLow:  fp(10),
			CriticalHigh: fp(90),
		},
		telemetry.MeasurementGas: {
			WarningHigh:  fp(100),
			CriticalHigh: fp(500),
		},
		telemetry.MeasurementLight: {
			WarningHigh: fp(100_000),
		},
		telemetry.MeasurementBytesOut: {
			WarningHigh: fp(10_000_000),
		},
		telemetry.MeasurementConnectionCount: {
			WarningHigh: fp(100),
		},
	}
}

// Default returns the complete built-in configuration.
func Default() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Server: ServerConfig{
			MetricsAddr:     "0.0.0.0:9464",
			ShutdownTimeout: 30 * time.Second,
		},
		Thresholds: ThresholdConfig{Policies: DefaultThresholdPolicies()},
		Stats: StatsConfig{
			Default:    stats.DefaultRetention(),
			MinSamples: 3,
		},
		Anomaly:  anomaly.DefaultConfig(),
		Classify: classify.DefaultConfig(),
		Alerting: alerting.DefaultConfig(),
		Dispatch: alerting.DefaultDispatcherConfig(),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints and the domain tables. Policy
// bound ordering is checked here so a bad table fails at startup, not at
// first evaluation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Thresholds.Policies) == 0 {
		return fmt.Errorf("config: empty threshold policy table")
	}
	for mt, p := range c.Thresholds.Policies {
		if !mt.Valid() {
			return fmt.Errorf("config: threshold policy for unknown measurement type %q", mt)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config: threshold policy for %s: %w", mt, err)
		}
	}
	for mt, r := range c.Stats.PerType {
		if !mt.Valid() {
			return fmt.Errorf("config: retention for unknown measurement type %q", mt)
		}
		if r.MaxSamples <= 0 && r.MaxAge <= 0 {
			return fmt.Errorf("config: retention for %s has no bound", mt)
		}
	}
	if err := c.Alerting.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
