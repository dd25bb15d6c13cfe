// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package classify

import (
	"context"
	"strings"
	"time"

	"github.com/safelink/sentinel/internal/logging"
	"github.com/safelink/sentinel/internal/match"
	"github.com/safelink/sentinel/internal/telemetry"
)

// Confidence tiers. More independent agreeing signals always yield a higher
// confidence than fewer: both(0.9) > override(0.7) > prefix(0.6) >
// hostname(0.55) > none(0.3).
const (
	confidenceBothAgree      = 0.9
	confidenceHostnameRefine = 0.7
	confidencePrefixOnly     = 0.6
	confidenceHostnameOnly   = 0.55
	confidenceNoMatch        = 0.3
)

// Config holds the classification policy tables.
type Config struct {
	// VendorPrefixes maps normalized OUI prefixes to vendor info.
	VendorPrefixes map[string]VendorInfo `koanf:"vendor_prefixes"`

	// HostnamePatterns maps case-insensitive substrings to device types.
	HostnamePatterns map[string]DeviceType `koanf:"hostname_patterns"`

	// RiskLevels maps device types to their policy risk posture.
	RiskLevels map[DeviceType]RiskLevel `koanf:"risk_levels"`

	// FlagRiskAtOrAbove flags classifications at or above this risk level.
	FlagRiskAtOrAbove RiskLevel `koanf:"flag_risk_at_or_above"`

	// FlagUnknown flags devices that could not be identified at all.
	FlagUnknown bool `koanf:"flag_unknown"`
}

// DefaultConfig returns the built-in classification policy.
func DefaultConfig() Config {
	return Config{
		VendorPrefixes:    DefaultVendorPrefixes(),
		HostnamePatterns:  DefaultHostnamePatterns(),
		RiskLevels:        DefaultRiskLevels(),
		FlagRiskAtOrAbove: RiskHigh,
		FlagUnknown:       true,
	}
}

// Classifier is the device risk classifier. Its tables are read-only after
// construction, so Classify is safe for unbounded concurrency.
type Classifier struct {
	cfg         Config
	hostMatcher *match.Matcher[DeviceType]
}

// New creates a classifier from the given policy. Nil tables fall back to
// the built-in defaults.
func New(cfg Config) *Classifier {
	if cfg.VendorPrefixes == nil {
		cfg.VendorPrefixes = DefaultVendorPrefixes()
	}
	if cfg.HostnamePatterns == nil {
		cfg.HostnamePatterns = DefaultHostnamePatterns()
	}
	if cfg.RiskLevels == nil {
		cfg.RiskLevels = DefaultRiskLevels()
	}
	if cfg.FlagRiskAtOrAbove == "" {
		cfg.FlagRiskAtOrAbove = RiskHigh
	}
	return &Classifier{
		cfg:         cfg,
		hostMatcher: match.NewMatcher(cfg.HostnamePatterns),
	}
}

// ouiPrefix extracts the normalized vendor prefix (first three octets) from
// a MAC address. Returns "" when the address has fewer than three groups.
func ouiPrefix(mac string) string {
	normalized := strings.ToUpper(mac)
	normalized = strings.ReplaceAll(normalized, "-", ":")
	normalized = strings.ReplaceAll(normalized, ".", ":")
	parts := strings.Split(normalized, ":")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:3], ":")
}

// Classify runs the rule pipeline for one identity. The identity is
// validated first; malformed input yields telemetry.ErrInvalidIdentity.
func (c *Classifier) Classify(identity *telemetry.DeviceIdentity) (*Classification, error) {
	if err := telemetry.ValidateIdentity(identity); err != nil {
		return nil, err
	}

	deviceType := DeviceUnknown
	vendor := "Unknown"
	confidence := confidenceNoMatch

	prefixHit := false
	if info, ok := c.cfg.VendorPrefixes[ouiPrefix(identity.MACAddress)]; ok {
		prefixHit = true
		deviceType = info.DeviceType
		vendor = info.Vendor
		confidence = confidencePrefixOnly
	}

	if hostMatch, ok := c.hostMatcher.Best(identity.Hostname); ok {
		switch {
		case prefixHit && hostMatch.Data == deviceType:
			// Two independent signals agree.
			confidence = confidenceBothAgree
		case prefixHit && deviceType.generic():
			// Hostname carries more specific evidence than a broad
			// vendor bucket; refine the type, keep the vendor.
			deviceType = hostMatch.Data
			confidence = confidenceHostnameRefine
		case !prefixHit:
			deviceType = hostMatch.Data
			confidence = confidenceHostnameOnly
		}
		// A specific prefix type disagreeing with the hostname keeps the
		// prefix verdict at prefix-only confidence.
	}

	risk, ok := c.cfg.RiskLevels[deviceType]
	if !ok {
		risk = RiskMedium
	}

	flagged := risk.AtLeast(c.cfg.FlagRiskAtOrAbove) ||
		(c.cfg.FlagUnknown && deviceType == DeviceUnknown)

	cls := &Classification{
		MACAddress:      identity.MACAddress,
		DeviceType:      deviceType,
		Vendor:          vendor,
		RiskLevel:       risk,
		Confidence:      confidence,
		IsFlagged:       flagged,
		Recommendations: recommendationsFor(deviceType, risk),
		ClassifiedAt:    time.Now().UTC(),
	}

	logging.Debug().
		Str("mac", identity.MACAddress).
		Str("device_type", string(deviceType)).
		Str("risk", string(risk)).
		Float64("confidence", confidence).
		Bool("flagged", flagged).
		Msg("device classified")

	return cls, nil
}

// ClassifyBatch classifies each identity independently and returns one
// result per input in the original order. A malformed entry fails only that
// entry. The batch may be cancelled between entries; results already
// computed are returned with ctx.Err().
func (c *Classifier) ClassifyBatch(ctx context.Context, identities []telemetry.DeviceIdentity) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(identities))
	for i := range identities {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		cls, err := c.Classify(&identities[i])
		if err != nil {
			results = append(results, BatchResult{Err: err})
			continue
		}
		results = append(results, BatchResult{Classification: cls})
	}
	return results, nil
}
