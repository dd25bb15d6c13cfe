// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package telemetry

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidMeasurement is returned when a measurement fails boundary
// validation. Malformed input is rejected here with a distinct error, never
// silently coerced into a default.
var ErrInvalidMeasurement = errors.New("invalid measurement")

// ErrInvalidIdentity is returned when a device identity fails boundary
// validation (empty or malformed MAC, bad IP, bad hostname).
var ErrInvalidIdentity = errors.New("invalid device identity")

// singleton validator instance; thread-safe and caches struct metadata.
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateMeasurement checks a measurement at the ingestion boundary.
// Non-finite values and unknown measurement types are invalid input,
// not severities.
func ValidateMeasurement(m *Measurement) error {
	if m == nil {
		return fmt.Errorf("%w: nil measurement", ErrInvalidMeasurement)
	}
	if err := getValidator().Struct(m); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMeasurement, validationDetail(err))
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("%w: non-finite value for %s/%s", ErrInvalidMeasurement, m.EntityID, m.Type)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown measurement type %q", ErrInvalidMeasurement, m.Type)
	}
	return nil
}

// ValidateIdentity checks a device identity at the ingestion boundary.
func ValidateIdentity(d *DeviceIdentity) error {
	if d == nil {
		return fmt.Errorf("%w: nil identity", ErrInvalidIdentity)
	}
	if err := getValidator().Struct(d); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidIdentity, validationDetail(err))
	}
	return nil
}

// validationDetail flattens validator errors into a compact field list.
func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	detail := ""
	for i, fe := range verrs {
		if i > 0 {
			detail += ", "
		}
		detail += fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag())
	}
	return detail
}
