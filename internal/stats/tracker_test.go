// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package stats

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/safelink/sentinel/internal/telemetry"
)

var base = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func record(t *Tracker, entity string, mt telemetry.MeasurementType, value float64, at time.Time) {
	t.Record(&telemetry.Measurement{EntityID: entity, Type: mt, Value: value, ObservedAt: at})
}

func TestStatsMeanAndStdDev(t *testing.T) {
	tr := NewTracker(nil)
	for i, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		record(tr, "DEV-001", telemetry.MeasurementTemperature, v, base.Add(time.Duration(i)*time.Minute))
	}

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	if st.SampleCount != 8 {
		t.Fatalf("SampleCount = %d, want 8", st.SampleCount)
	}
	if st.Mean != 5 {
		t.Errorf("Mean = %v, want 5", st.Mean)
	}
	if st.StdDev != 2 {
		t.Errorf("StdDev = %v, want 2", st.StdDev)
	}
	if st.LastValue != 9 {
		t.Errorf("LastValue = %v, want 9", st.LastValue)
	}
}

func TestZScoreUndefinedOnConstantWindow(t *testing.T) {
	tr := NewTracker(nil)
	for i := 0; i < 5; i++ {
		record(tr, "DEV-001", telemetry.MeasurementHumidity, 50, base.Add(time.Duration(i)*time.Minute))
	}

	st := tr.Stats("DEV-001", telemetry.MeasurementHumidity)
	if st.StdDev != 0 {
		t.Fatalf("StdDev = %v, want 0", st.StdDev)
	}
	if _, err := st.ZScore(60); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("z-score on zero-variance window: got %v, want ErrInsufficientData", err)
	}
}

func TestZScoreUndefinedBelowMinSamples(t *testing.T) {
	tr := NewTracker(nil)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 20, base)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 22, base.Add(time.Minute))

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	if _, err := st.ZScore(30); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("z-score with 2 samples: got %v, want ErrInsufficientData", err)
	}
}

func TestZScoreDefined(t *testing.T) {
	tr := NewTracker(nil)
	for i, v := range []float64{10, 20, 30} {
		record(tr, "DEV-001", telemetry.MeasurementTemperature, v, base.Add(time.Duration(i)*time.Minute))
	}

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	z, err := st.ZScore(st.Mean + st.StdDev)
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if math.Abs(z-1) > 1e-9 {
		t.Errorf("z = %v, want 1", z)
	}
}

func TestRateOfChange(t *testing.T) {
	tr := NewTracker(nil)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 20, base)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 30, base.Add(10*time.Second))

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	if st.RateOfChange == nil {
		t.Fatal("RateOfChange = nil, want defined")
	}
	if *st.RateOfChange != 1 {
		t.Errorf("RateOfChange = %v, want 1 (10 units over 10s)", *st.RateOfChange)
	}
}

func TestRateOfChangeUndefined(t *testing.T) {
	tr := NewTracker(nil)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 20, base)

	if st := tr.Stats("DEV-001", telemetry.MeasurementTemperature); st.RateOfChange != nil {
		t.Errorf("single sample: RateOfChange = %v, want nil", *st.RateOfChange)
	}

	// Two samples sharing a timestamp: Δt = 0, rate undefined.
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 25, base)
	if st := tr.Stats("DEV-001", telemetry.MeasurementTemperature); st.RateOfChange != nil {
		t.Errorf("zero Δt: RateOfChange = %v, want nil", *st.RateOfChange)
	}
}

func TestOutOfOrderInsertKeepsOrdering(t *testing.T) {
	tr := NewTracker(nil)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 30, base.Add(2*time.Minute))
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 10, base) // late arrival
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 20, base.Add(time.Minute))

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	// Last value must reflect the newest observation time, not arrival order.
	if st.LastValue != 30 {
		t.Errorf("LastValue = %v, want 30", st.LastValue)
	}
	if st.RateOfChange == nil {
		t.Fatal("RateOfChange = nil")
	}
	// Most recent pair is (20 @ +1m, 30 @ +2m): 10 units over 60s.
	if math.Abs(*st.RateOfChange-10.0/60.0) > 1e-9 {
		t.Errorf("RateOfChange = %v, want %v", *st.RateOfChange, 10.0/60.0)
	}
}

func TestDuplicateRecordIsIdempotent(t *testing.T) {
	tr := NewTracker(nil)
	m := &telemetry.Measurement{
		EntityID:   "DEV-001",
		Type:       telemetry.MeasurementGas,
		Value:      42,
		ObservedAt: base,
	}
	tr.Record(m)
	tr.Record(m)

	if st := tr.Stats("DEV-001", telemetry.MeasurementGas); st.SampleCount != 1 {
		t.Errorf("SampleCount after duplicate record = %d, want 1", st.SampleCount)
	}
}

func TestCountEviction(t *testing.T) {
	tr := NewTracker(map[telemetry.MeasurementType]Retention{
		telemetry.MeasurementTemperature: {MaxSamples: 3},
	})
	for i := 0; i < 10; i++ {
		record(tr, "DEV-001", telemetry.MeasurementTemperature, float64(i), base.Add(time.Duration(i)*time.Minute))
	}

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	if st.SampleCount != 3 {
		t.Fatalf("SampleCount = %d, want 3", st.SampleCount)
	}
	if st.Mean != 8 { // samples 7, 8, 9
		t.Errorf("Mean = %v, want 8", st.Mean)
	}
}

func TestAgeEviction(t *testing.T) {
	tr := NewTracker(map[telemetry.MeasurementType]Retention{
		telemetry.MeasurementTemperature: {MaxSamples: 100, MaxAge: 10 * time.Minute},
	})
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 1, base)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 2, base.Add(5*time.Minute))
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 3, base.Add(20*time.Minute))

	st := tr.Stats("DEV-001", telemetry.MeasurementTemperature)
	// The first two samples are older than newest-10m.
	if st.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", st.SampleCount)
	}
}

func TestWindowsAreIsolatedPerKey(t *testing.T) {
	tr := NewTracker(nil)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 100, base)
	record(tr, "DEV-002", telemetry.MeasurementTemperature, 1, base)
	record(tr, "DEV-001", telemetry.MeasurementHumidity, 50, base)

	if st := tr.Stats("DEV-002", telemetry.MeasurementTemperature); st.LastValue != 1 {
		t.Errorf("DEV-002 window contaminated: LastValue = %v", st.LastValue)
	}
	if tr.WindowCount() != 3 {
		t.Errorf("WindowCount = %d, want 3", tr.WindowCount())
	}
}

func TestForget(t *testing.T) {
	tr := NewTracker(nil)
	record(tr, "DEV-001", telemetry.MeasurementTemperature, 1, base)
	tr.Forget("DEV-001", telemetry.MeasurementTemperature)

	if st := tr.Stats("DEV-001", telemetry.MeasurementTemperature); st.SampleCount != 0 {
		t.Errorf("SampleCount after Forget = %d, want 0", st.SampleCount)
	}
}

func TestConcurrentRecordAcrossEntities(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			entity := string(rune('A' + g))
			for i := 0; i < 100; i++ {
				record(tr, entity, telemetry.MeasurementTemperature, float64(i), base.Add(time.Duration(i)*time.Second))
				_ = tr.Stats(entity, telemetry.MeasurementTemperature)
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		entity := string(rune('A' + g))
		if st := tr.Stats(entity, telemetry.MeasurementTemperature); st.SampleCount != 64 {
			t.Errorf("entity %s: SampleCount = %d, want 64 (default retention)", entity, st.SampleCount)
		}
	}
}
