package model

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestVehicleCountsTotal(t *testing.T) {
	vc := VehicleCounts{
		VehicleCar:        6,
		VehicleMotorcycle: 1,
		VehicleBus:        1,
		VehicleTruck:      0,
	}
	if got := vc.Total(); got != 8 {
		t.Errorf("Total() = %d, want 8", got)
	}

	if got := (VehicleCounts{}).Total(); got != 0 {
		t.Errorf("empty Total() = %d, want 0", got)
	}
}

func TestVehicleCountsValidate(t *testing.T) {
	valid := VehicleCounts{VehicleCar: 3, VehicleBus: 0}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	negative := VehicleCounts{VehicleCar: -1}
	err := negative.Validate()
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative count: got %v, want ErrInvalidInput", err)
	}

	unknown := VehicleCounts{VehicleType("bicycle"): 2}
	err = unknown.Validate()
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown type: got %v, want ErrInvalidInput", err)
	}
}

func TestVehicleCountsClone(t *testing.T) {
	vc := VehicleCounts{VehicleCar: 2}
	clone := vc.Clone()
	clone[VehicleCar] = 99
	if vc[VehicleCar] != 2 {
		t.Error("Clone() shares storage with the original")
	}
}

func TestCycleOutcomeRecord(t *testing.T) {
	start := time.Date(2026, 3, 14, 8, 30, 0, 0, time.UTC)
	outcome := &CycleOutcome{
		CycleID:   "cycle_test",
		StartedAt: start,
		SourceID:  1,
		Counts:    VehicleCounts{VehicleCar: 6, VehicleMotorcycle: 1, VehicleBus: 1},
		Timing: TimingResult{
			GreenTime:      47,
			YellowTime:     3,
			AllRedTime:     2,
			TotalCycleTime: 52,
			WeightedCount:  8.5,
			Algorithm:      AlgorithmLinear,
		},
		Elapsed: 1500 * time.Millisecond,
	}

	rec := outcome.Record()
	if rec.VehicleCount != 8 {
		t.Errorf("VehicleCount = %d, want 8", rec.VehicleCount)
	}
	if rec.GreenTime != 47 || rec.TotalCycleTime != 52 {
		t.Errorf("timing = %d/%d, want 47/52", rec.GreenTime, rec.TotalCycleTime)
	}
	if rec.Timestamp != start {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, start)
	}
	if rec.ProcessingSec != 1.5 {
		t.Errorf("ProcessingSec = %v, want 1.5", rec.ProcessingSec)
	}

	// The record must be independent of the transient outcome.
	outcome.Counts[VehicleCar] = 100
	if rec.VehicleStats[VehicleCar] != 6 {
		t.Error("record shares vehicle stats with the outcome")
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"capture", &CaptureError{SourceIDs: []int{0, 1}, Err: ErrAllSourcesExhausted}, true},
		{"detection timeout", &DetectionError{SourceID: 0, Err: ErrDetectorTimeout}, true},
		{"detection unavailable", &DetectionError{SourceID: 0, Err: ErrDetectorUnavailable}, true},
		{"invalid input", ErrInvalidInput, true},
		{"persist", fmt.Errorf("%w: cycle record: disk full", ErrPersistFailed), true},
		{"config", &ConfigError{Field: "timing.min_green", Err: errors.New("must be positive")}, false},
		{"unknown", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecoverable(tt.err); got != tt.want {
				t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
