package timing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttraffic/trafficd/internal/model"
)

func testConfig() model.TimingConfig {
	return model.TimingConfig{
		MinGreen:          15,
		MaxGreen:          120,
		BaseGreen:         30,
		VehicleMultiplier: 2.0,
		YellowTime:        3,
		AllRedTime:        2,
		Weights: map[model.VehicleType]float64{
			model.VehicleCar:        1.0,
			model.VehicleMotorcycle: 0.5,
			model.VehicleBus:        2.0,
			model.VehicleTruck:      1.5,
		},
		Alpha:         0.7,
		HistoryWindow: 20,
	}
}

func historyWithGreens(greens ...int) []model.CycleRecord {
	recs := make([]model.CycleRecord, len(greens))
	for i, g := range greens {
		recs[i] = model.CycleRecord{GreenTime: g, Algorithm: model.AlgorithmAdaptive}
	}
	return recs
}

func TestCompute_WorkedExample(t *testing.T) {
	e := NewEngine(testConfig())
	counts := model.VehicleCounts{
		model.VehicleCar:        6,
		model.VehicleMotorcycle: 1,
		model.VehicleBus:        1,
		model.VehicleTruck:      0,
	}

	res, err := e.Compute(counts, nil, model.AlgorithmLinear)
	require.NoError(t, err)

	// W = 6×1.0 + 1×0.5 + 1×2.0 + 0×1.5 = 8.5; green = 30 + 8.5×2.0 = 47
	assert.Equal(t, 8.5, res.WeightedCount)
	assert.Equal(t, 47, res.GreenTime)
	assert.Equal(t, 3, res.YellowTime)
	assert.Equal(t, 2, res.AllRedTime)
	assert.Equal(t, 52, res.TotalCycleTime)
	assert.Equal(t, model.AlgorithmLinear, res.Algorithm)
}

func TestCompute_ClampInvariant(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	history := historyWithGreens(40, 55, 110)

	algorithms := []model.Algorithm{
		model.AlgorithmLinear,
		model.AlgorithmLogarithmic,
		model.AlgorithmAdaptive,
	}

	// Sweep from empty to far past saturation.
	for cars := 0; cars <= 200; cars += 5 {
		counts := model.VehicleCounts{model.VehicleCar: cars}
		for _, alg := range algorithms {
			res, err := e.Compute(counts, history, alg)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.GreenTime, cfg.MinGreen,
				"algorithm %s, cars %d", alg, cars)
			assert.LessOrEqual(t, res.GreenTime, cfg.MaxGreen,
				"algorithm %s, cars %d", alg, cars)
		}
	}
}

func TestCompute_LogarithmicSubLinear(t *testing.T) {
	e := NewEngine(testConfig())

	// Unclamped region: growth of log must stay strictly below linear.
	w1 := model.VehicleCounts{model.VehicleCar: 5}
	w2 := model.VehicleCounts{model.VehicleCar: 20}

	lin1, err := e.Compute(w1, nil, model.AlgorithmLinear)
	require.NoError(t, err)
	lin2, err := e.Compute(w2, nil, model.AlgorithmLinear)
	require.NoError(t, err)
	log1, err := e.Compute(w1, nil, model.AlgorithmLogarithmic)
	require.NoError(t, err)
	log2, err := e.Compute(w2, nil, model.AlgorithmLogarithmic)
	require.NoError(t, err)

	assert.Less(t, log2.GreenTime-log1.GreenTime, lin2.GreenTime-lin1.GreenTime)
}

func TestCompute_AdaptiveEmptyHistoryEqualsLinear(t *testing.T) {
	e := NewEngine(testConfig())
	counts := model.VehicleCounts{model.VehicleCar: 7, model.VehicleBus: 2}

	linear, err := e.Compute(counts, nil, model.AlgorithmLinear)
	require.NoError(t, err)
	adaptive, err := e.Compute(counts, nil, model.AlgorithmAdaptive)
	require.NoError(t, err)

	assert.Equal(t, linear.GreenTime, adaptive.GreenTime)
	assert.Equal(t, linear.TotalCycleTime, adaptive.TotalCycleTime)
	assert.Zero(t, adaptive.HistoricalMean)
}

func TestCompute_AdaptiveBlend(t *testing.T) {
	cfg := testConfig()
	cfg.Alpha = 0.5
	e := NewEngine(cfg)

	counts := model.VehicleCounts{model.VehicleCar: 10} // linear raw = 30 + 20 = 50
	history := historyWithGreens(20, 40)                // mean = 30

	res, err := e.Compute(counts, history, model.AlgorithmAdaptive)
	require.NoError(t, err)

	// 0.5×50 + 0.5×30 = 40
	assert.Equal(t, 40, res.GreenTime)
	assert.Equal(t, 30.0, res.HistoricalMean)
}

func TestCompute_AdaptiveWindowBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Alpha = 0.0 // result tracks the historical mean exactly
	cfg.HistoryWindow = 2
	e := NewEngine(cfg)

	// Old records outside the window must not influence the mean.
	history := historyWithGreens(120, 120, 120, 30, 40)

	res, err := e.Compute(model.VehicleCounts{model.VehicleCar: 1}, history, model.AlgorithmAdaptive)
	require.NoError(t, err)

	// mean of last 2 = 35
	assert.Equal(t, 35, res.GreenTime)
	assert.Equal(t, 35.0, res.HistoricalMean)
}

func TestCompute_ZeroTrafficGetsBaseGreen(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	empty := model.VehicleCounts{}

	for _, alg := range []model.Algorithm{model.AlgorithmLinear, model.AlgorithmLogarithmic} {
		res, err := e.Compute(empty, nil, alg)
		require.NoError(t, err)
		// base_green, not min_green: an empty intersection is not degenerate.
		assert.Equal(t, cfg.BaseGreen, res.GreenTime, "algorithm %s", alg)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	e := NewEngine(testConfig())
	counts := model.VehicleCounts{model.VehicleCar: 9, model.VehicleTruck: 3}
	history := historyWithGreens(33, 48, 71)

	first, err := e.Compute(counts, history, model.AlgorithmAdaptive)
	require.NoError(t, err)
	second, err := e.Compute(counts, history, model.AlgorithmAdaptive)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_RoundsHalfUp(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = map[model.VehicleType]float64{model.VehicleCar: 0.25}
	e := NewEngine(cfg)

	// W = 33×0.25 = 8.25; green raw = 30 + 16.5 = 46.5 → rounds up to 47
	res, err := e.Compute(model.VehicleCounts{model.VehicleCar: 33}, nil, model.AlgorithmLinear)
	require.NoError(t, err)
	assert.Equal(t, 47, res.GreenTime)
}

func TestCompute_NegativeCountsRejected(t *testing.T) {
	e := NewEngine(testConfig())
	_, err := e.Compute(model.VehicleCounts{model.VehicleCar: -3}, nil, model.AlgorithmLinear)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestCompute_UnknownAlgorithmFatal(t *testing.T) {
	e := NewEngine(testConfig())
	_, err := e.Compute(model.VehicleCounts{}, nil, model.Algorithm("neural"))
	require.Error(t, err)

	var ce *model.ConfigError
	assert.True(t, errors.As(err, &ce))
	assert.False(t, model.IsRecoverable(err))
}
