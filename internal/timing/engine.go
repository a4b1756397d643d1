// Package timing computes green-light durations from vehicle counts and
// cycle history. The engine is a pure function of its inputs: identical
// counts, history, and algorithm always produce identical output.
package timing

import (
	"fmt"
	"math"

	"github.com/smarttraffic/trafficd/internal/model"
)

// logScale converts weighted vehicle count into seconds of green under the
// logarithmic algorithm; growth is deliberately sub-linear so heavy traffic
// cannot run the duration away before the max clamp.
const logScale = 15.0

type Engine struct {
	cfg model.TimingConfig
}

func NewEngine(cfg model.TimingConfig) *Engine {
	return &Engine{cfg: cfg}
}

// WeightedCount folds per-type counts through the priority weights, so a bus
// contributes more demand than its raw count alone.
func (e *Engine) WeightedCount(counts model.VehicleCounts) float64 {
	w := 0.0
	for t, n := range counts {
		w += float64(n) * e.cfg.Weight(t)
	}
	return w
}

// Compute derives the full phase sequence for one cycle. Recoverable input
// problems (negative counts) return ErrInvalidInput; an unknown algorithm is
// a ConfigError and fatal to the run.
func (e *Engine) Compute(counts model.VehicleCounts, history []model.CycleRecord, algorithm model.Algorithm) (model.TimingResult, error) {
	if err := counts.Validate(); err != nil {
		return model.TimingResult{}, err
	}

	w := e.WeightedCount(counts)

	var raw, histMean float64
	switch algorithm {
	case model.AlgorithmLinear:
		raw = e.linearRaw(w)
	case model.AlgorithmLogarithmic:
		raw = e.logarithmicRaw(w)
	case model.AlgorithmAdaptive:
		raw, histMean = e.adaptiveRaw(w, history)
	default:
		return model.TimingResult{}, &model.ConfigError{
			Field: "algorithm",
			Err:   fmt.Errorf("unknown algorithm %q", algorithm),
		}
	}

	green := e.finalize(raw)

	return model.TimingResult{
		GreenTime:      green,
		YellowTime:     e.cfg.YellowTime,
		AllRedTime:     e.cfg.AllRedTime,
		TotalCycleTime: green + e.cfg.YellowTime + e.cfg.AllRedTime,
		WeightedCount:  w,
		HistoricalMean: histMean,
		Algorithm:      algorithm,
	}, nil
}

// linearRaw: base + W × multiplier. W=0 yields base_green — an empty
// intersection still gets a useful interval, not the bare minimum.
func (e *Engine) linearRaw(w float64) float64 {
	return float64(e.cfg.BaseGreen) + w*e.cfg.VehicleMultiplier
}

// logarithmicRaw: base + 15·ln(W+1). Sub-linear in W; ln(1)=0 keeps the
// empty-intersection case at base_green.
func (e *Engine) logarithmicRaw(w float64) float64 {
	return float64(e.cfg.BaseGreen) + logScale*math.Log(w+1)
}

// adaptiveRaw blends the linear estimate with the mean green of the last K
// records: α·linear + (1−α)·mean. With no history the blend degenerates to
// the pure linear estimate (α = 1). "Adaptive" means informed by recent
// history, not learned online — α is a fixed configuration constant.
func (e *Engine) adaptiveRaw(w float64, history []model.CycleRecord) (raw, histMean float64) {
	linear := e.linearRaw(w)

	window := recentWindow(history, e.cfg.HistoryWindow)
	if len(window) == 0 {
		return linear, 0
	}

	sum := 0.0
	for _, rec := range window {
		sum += float64(rec.GreenTime)
	}
	histMean = sum / float64(len(window))

	alpha := e.cfg.Alpha
	return alpha*linear + (1-alpha)*histMean, histMean
}

// recentWindow bounds the history read to the last k records (all if k <= 0),
// keeping compute cost constant per call regardless of history length.
func recentWindow(history []model.CycleRecord, k int) []model.CycleRecord {
	if k > 0 && len(history) > k {
		return history[len(history)-k:]
	}
	return history
}

// finalize clamps to [min_green, max_green] and rounds half-up to whole
// seconds. Rounding up on ties keeps the decision conservative: a longer
// green is the safer error.
func (e *Engine) finalize(raw float64) int {
	clamped := math.Min(math.Max(raw, float64(e.cfg.MinGreen)), float64(e.cfg.MaxGreen))
	return int(math.Floor(clamped + 0.5))
}
