// Package report turns history summaries into JSON reports and terminal
// output.
package report

import (
	"time"

	"github.com/smarttraffic/trafficd/internal/history"
	"github.com/smarttraffic/trafficd/internal/model"
	"github.com/smarttraffic/trafficd/internal/storage"
)

// Report is the durable JSON form of a run summary.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	System      SystemInfo   `json:"system_info"`
	Traffic     TrafficStats `json:"traffic_statistics"`
	Timing      TimingStats  `json:"timing_statistics"`
	Performance PerfStats    `json:"performance"`
}

type SystemInfo struct {
	TotalCycles  int                     `json:"total_cycles"`
	AlgorithmUse map[model.Algorithm]int `json:"algorithm_use"`
	From         time.Time               `json:"from,omitempty"`
	To           time.Time               `json:"to,omitempty"`
}

type TrafficStats struct {
	TotalVehicles    int                       `json:"total_vehicles_detected"`
	AvgPerCycle      float64                   `json:"average_vehicles_per_cycle"`
	VehicleBreakdown map[model.VehicleType]int `json:"vehicle_type_breakdown"`
}

type TimingStats struct {
	AvgGreen     float64 `json:"average_green_time"`
	MinGreen     int     `json:"min_green_time"`
	MaxGreen     int     `json:"max_green_time"`
	AvgCycleTime float64 `json:"average_cycle_time"`
}

type PerfStats struct {
	AvgProcessing float64 `json:"average_processing_time"`
	// TimeSavedSec compares adaptive green time against a fixed baseline:
	// extra green granted to cycles busier than the baseline would serve.
	TimeSavedSec  float64 `json:"total_time_saved"`
	BaselineGreen int     `json:"baseline_green_time"`
}

// Build assembles a report from an aggregate summary and the records behind
// it. baselineGreen is the fixed-plan green time the adaptive run is compared
// against.
func Build(sum history.Summary, records []model.CycleRecord, baselineGreen int) Report {
	avgPerCycle := 0.0
	if sum.Cycles > 0 {
		avgPerCycle = float64(sum.TotalVehicles) / float64(sum.Cycles)
	}

	saved := 0.0
	for _, rec := range records {
		if rec.GreenTime > baselineGreen {
			saved += float64(rec.GreenTime - baselineGreen)
		}
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		System: SystemInfo{
			TotalCycles:  sum.Cycles,
			AlgorithmUse: sum.AlgorithmUse,
			From:         sum.From,
			To:           sum.To,
		},
		Traffic: TrafficStats{
			TotalVehicles:    sum.TotalVehicles,
			AvgPerCycle:      avgPerCycle,
			VehicleBreakdown: sum.Breakdown,
		},
		Timing: TimingStats{
			AvgGreen:     sum.AvgGreen,
			MinGreen:     sum.MinGreen,
			MaxGreen:     sum.MaxGreen,
			AvgCycleTime: sum.AvgCycleTime,
		},
		Performance: PerfStats{
			AvgProcessing: sum.AvgProcessing,
			TimeSavedSec:  saved,
			BaselineGreen: baselineGreen,
		},
	}
}

// WriteJSON persists the report atomically.
func WriteJSON(path string, rep Report) error {
	return storage.AtomicWriteJSON(path, rep)
}
