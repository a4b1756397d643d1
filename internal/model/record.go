package model

import "time"

type Algorithm string

const (
	AlgorithmLinear      Algorithm = "linear"
	AlgorithmLogarithmic Algorithm = "logarithmic"
	AlgorithmAdaptive    Algorithm = "adaptive"
)

var validAlgorithms = map[Algorithm]bool{
	AlgorithmLinear:      true,
	AlgorithmLogarithmic: true,
	AlgorithmAdaptive:    true,
}

func ValidAlgorithm(a Algorithm) bool {
	return validAlgorithms[a]
}

// TimingResult is the computed phase sequence for one cycle.
// All durations are integer seconds.
type TimingResult struct {
	GreenTime      int
	YellowTime     int
	AllRedTime     int
	TotalCycleTime int
	WeightedCount  float64
	// HistoricalMean is the mean green time blended in by the adaptive
	// algorithm; zero when history was empty or another algorithm ran.
	HistoricalMean float64
	Algorithm      Algorithm
}

// CycleRecord is one persisted decision cycle. Append-only; never mutated
// after being written to the history store.
type CycleRecord struct {
	CycleID        string              `json:"cycle_id"`
	Timestamp      time.Time           `json:"timestamp"`
	SourceID       int                 `json:"source_id"`
	VehicleCount   int                 `json:"vehicle_count"`
	VehicleStats   map[VehicleType]int `json:"vehicle_stats"`
	WeightedCount  float64             `json:"weighted_count"`
	GreenTime      int                 `json:"green_time"`
	YellowTime     int                 `json:"yellow_time"`
	AllRedTime     int                 `json:"all_red_time"`
	TotalCycleTime int                 `json:"total_cycle_time"`
	HistoricalMean float64             `json:"historical_mean,omitempty"`
	Algorithm      Algorithm           `json:"algorithm"`
	ProcessingSec  float64             `json:"processing_time"`
}

// CycleOutcome is the transient in-memory result of one full cycle. It is
// converted to a CycleRecord for persistence and discarded otherwise.
type CycleOutcome struct {
	CycleID   string
	StartedAt time.Time
	SourceID  int
	Counts    VehicleCounts
	Timing    TimingResult
	Elapsed   time.Duration
}

// Record converts the outcome into its durable form.
func (o *CycleOutcome) Record() CycleRecord {
	return CycleRecord{
		CycleID:        o.CycleID,
		Timestamp:      o.StartedAt,
		SourceID:       o.SourceID,
		VehicleCount:   o.Counts.Total(),
		VehicleStats:   o.Counts.Clone(),
		WeightedCount:  o.Timing.WeightedCount,
		GreenTime:      o.Timing.GreenTime,
		YellowTime:     o.Timing.YellowTime,
		AllRedTime:     o.Timing.AllRedTime,
		TotalCycleTime: o.Timing.TotalCycleTime,
		HistoricalMean: o.Timing.HistoricalMean,
		Algorithm:      o.Timing.Algorithm,
		ProcessingSec:  o.Elapsed.Seconds(),
	}
}
