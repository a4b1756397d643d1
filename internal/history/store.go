// Package history persists cycle records append-only and serves them back
// for the adaptive algorithm and for reports.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/model"
)

// Store is an append-only log of cycle records.
type Store interface {
	// Append persists one record. Records are never updated or deleted.
	Append(ctx context.Context, rec model.CycleRecord) error
	// Recent returns up to n records in chronological order, newest last.
	// n <= 0 returns everything.
	Recent(ctx context.Context, n int) ([]model.CycleRecord, error)
	// Aggregate summarizes the most recent window records (0 = all).
	Aggregate(ctx context.Context, window int) (Summary, error)
	Close() error
}

// Summary aggregates a window of cycle records for reporting.
type Summary struct {
	Cycles        int
	TotalVehicles int
	Breakdown     map[model.VehicleType]int
	AlgorithmUse  map[model.Algorithm]int

	AvgGreen      float64
	MinGreen      int
	MaxGreen      int
	AvgCycleTime  float64
	AvgProcessing float64

	From time.Time
	To   time.Time
}

// New builds the configured backend.
func New(ctx context.Context, cfg model.HistoryConfig, dataDir string, logger *logrus.Logger) (Store, error) {
	switch cfg.Backend {
	case "file":
		return NewFileStore(dataDir, cfg.File, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, &model.ConfigError{
			Field: "history.backend",
			Err:   fmt.Errorf("unknown backend %q", cfg.Backend),
		}
	}
}

// summarize folds records into a Summary. Shared across backends so file,
// postgres, and memory report identically.
func summarize(records []model.CycleRecord, window int) Summary {
	if window > 0 && len(records) > window {
		records = records[len(records)-window:]
	}

	s := Summary{
		Breakdown:    make(map[model.VehicleType]int),
		AlgorithmUse: make(map[model.Algorithm]int),
	}
	if len(records) == 0 {
		return s
	}

	s.Cycles = len(records)
	s.MinGreen = records[0].GreenTime
	s.From = records[0].Timestamp
	s.To = records[len(records)-1].Timestamp

	var greenSum, cycleSum int
	var procSum float64
	for _, rec := range records {
		s.TotalVehicles += rec.VehicleCount
		for t, n := range rec.VehicleStats {
			s.Breakdown[t] += n
		}
		s.AlgorithmUse[rec.Algorithm]++

		greenSum += rec.GreenTime
		cycleSum += rec.TotalCycleTime
		procSum += rec.ProcessingSec
		if rec.GreenTime < s.MinGreen {
			s.MinGreen = rec.GreenTime
		}
		if rec.GreenTime > s.MaxGreen {
			s.MaxGreen = rec.GreenTime
		}
	}

	s.AvgGreen = float64(greenSum) / float64(len(records))
	s.AvgCycleTime = float64(cycleSum) / float64(len(records))
	s.AvgProcessing = procSum / float64(len(records))
	return s
}
