package risk

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/logger"
)

func day(d int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func series(vals ...float64) []contracts.IndexValue {
	out := make([]contracts.IndexValue, len(vals))
	for i, v := range vals {
		out[i] = contracts.IndexValue{Date: day(i), Value: v}
	}
	return out
}

func bench(vals ...float64) []contracts.BenchmarkPoint {
	out := make([]contracts.BenchmarkPoint, len(vals))
	for i, v := range vals {
		out[i] = contracts.BenchmarkPoint{Date: day(i), Value: v}
	}
	return out
}

func TestCalculate_Drawdown(t *testing.T) {
	res, err := NewCalculator(nil).Calculate(series(100, 110, 90, 95), nil, 30)
	require.NoError(t, err)

	m := res.Metric
	assert.InDelta(t, (90.0-110.0)/110.0, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, (95.0-110.0)/110.0, m.CurrentDrawdown, 1e-12)
	assert.InDelta(t, -0.05, m.TotalReturn, 1e-12)
	assert.Equal(t, 3, m.Observations)
	assert.Equal(t, day(3), m.Date)
}

func TestCalculate_ConstantSeriesZeroRatios(t *testing.T) {
	res, err := NewCalculator(nil).Calculate(series(100, 100, 100, 100, 100), nil, 30)
	require.NoError(t, err)

	m := res.Metric
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 0.0, m.SortinoRatio)
	require.NotNil(t, m.Volatility)
	assert.Equal(t, 0.0, *m.Volatility)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.False(t, math.IsNaN(m.SharpeRatio))

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "NaN")
}

func TestCalculate_VolatilityAndSharpe(t *testing.T) {
	vals := series(100, 101, 99.99, 102, 102.5, 103)
	res, err := NewCalculator(nil).Calculate(vals, nil, 30)
	require.NoError(t, err)

	r := res.Returns
	require.Len(t, r, 5)
	mean := 0.0
	for _, x := range r {
		mean += x
	}
	mean /= float64(len(r))
	ss := 0.0
	for _, x := range r {
		ss += (x - mean) * (x - mean)
	}
	vol := math.Sqrt(ss/float64(len(r)-1)) * math.Sqrt(252)

	m := res.Metric
	require.NotNil(t, m.Volatility)
	assert.InDelta(t, vol, *m.Volatility, 1e-12)
	assert.InDelta(t, mean*252/vol, m.SharpeRatio, 1e-9)
	require.NotNil(t, m.AnnualizedReturn)
	assert.InDelta(t, math.Pow(1.03, 252.0/5)-1, *m.AnnualizedReturn, 1e-9)

	// 하락 수익률 1개 → 하방 표준편차 정의 불가 → 0
	assert.Equal(t, 0.0, m.SortinoRatio)
}

func TestCalculate_Sortino(t *testing.T) {
	vals := series(100, 98, 99, 97, 100, 101)
	res, err := NewCalculator(nil).Calculate(vals, nil, 30)
	require.NoError(t, err)

	var neg []float64
	mean := 0.0
	for _, x := range res.Returns {
		mean += x
		if x < 0 {
			neg = append(neg, x)
		}
	}
	mean /= float64(len(res.Returns))
	require.Len(t, neg, 2)
	nm := (neg[0] + neg[1]) / 2
	dstd := math.Sqrt(((neg[0]-nm)*(neg[0]-nm)+(neg[1]-nm)*(neg[1]-nm))/1) * math.Sqrt(252)

	assert.InDelta(t, mean*252/dstd, res.Metric.SortinoRatio, 1e-9)
}

func TestCalculate_WindowUsesLastObservations(t *testing.T) {
	vals := series(50, 200, 100, 110, 121)
	res, err := NewCalculator(nil).Calculate(vals, nil, 3)
	require.NoError(t, err)

	m := res.Metric
	assert.Equal(t, 2, m.Observations)
	assert.InDelta(t, 0.21, m.TotalReturn, 1e-12)
	assert.Equal(t, 0.0, m.MaxDrawdown, "the 200 → 100 fall is outside the window")
}

func TestCalculate_SingleValue(t *testing.T) {
	res, err := NewCalculator(nil).Calculate(series(100), nil, 30)
	require.NoError(t, err)

	m := res.Metric
	assert.Equal(t, 0, m.Observations)
	assert.Nil(t, m.Volatility)
	assert.Nil(t, m.AnnualizedReturn)
	assert.Nil(t, m.VaR95)
	assert.Nil(t, m.VaR99)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

func TestCalculate_InputErrors(t *testing.T) {
	calc := NewCalculator(nil)

	_, err := calc.Calculate(series(100, 101), nil, 1)
	var cfgErr *contracts.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "risk.window", cfgErr.Field)

	_, err = calc.Calculate(nil, nil, 30)
	assert.ErrorIs(t, err, contracts.ErrInsufficientData)

	_, err = calc.Calculate(series(100, 0, 100), nil, 30)
	assert.ErrorIs(t, err, contracts.ErrNonPositiveValue)

	swapped := series(100, 101)
	swapped[0], swapped[1] = swapped[1], swapped[0]
	_, err = calc.Calculate(swapped, nil, 30)
	assert.ErrorIs(t, err, contracts.ErrNonIncreasingDate)
}

func TestCalculate_BetaAndCorrelation(t *testing.T) {
	// 지수 수익률 = 2 × 벤치마크 수익률
	b := []float64{100}
	v := []float64{100}
	moves := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	for _, mv := range moves {
		b = append(b, b[len(b)-1]*(1+mv))
		v = append(v, v[len(v)-1]*(1+2*mv))
	}

	res, err := NewCalculator(nil).Calculate(series(v...), bench(b...), 30)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	m := res.Metric
	require.NotNil(t, m.BetaSP500)
	require.NotNil(t, m.CorrelationSP500)
	assert.InDelta(t, 2.0, *m.BetaSP500, 1e-9)
	assert.InDelta(t, 1.0, *m.CorrelationSP500, 1e-9)
}

func TestCalculate_BenchmarkEdgeCases(t *testing.T) {
	calc := NewCalculator(nil)
	vals := series(100, 101, 102, 101)

	t.Run("no benchmark", func(t *testing.T) {
		res, err := calc.Calculate(vals, nil, 30)
		require.NoError(t, err)
		assert.Nil(t, res.Metric.BetaSP500)
		assert.Empty(t, res.Warnings)
	})

	t.Run("no shared dates", func(t *testing.T) {
		var buf bytes.Buffer
		logged := NewCalculator(logger.NewWithWriter(&buf, "warn"))

		other := []contracts.BenchmarkPoint{{Date: day(100), Value: 10}, {Date: day(101), Value: 11}}
		res, err := logged.Calculate(vals, other, 30)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "benchmark alignment failed")
		assert.Nil(t, res.Metric.BetaSP500)
		assert.Nil(t, res.Metric.CorrelationSP500)
		require.Len(t, res.Warnings, 1)
		assert.True(t, IsAlignmentWarning(res.Warnings[0]))
		assert.NotNil(t, res.Metric.Volatility, "other metrics still computed")
	})

	t.Run("one shared return", func(t *testing.T) {
		partial := []contracts.BenchmarkPoint{{Date: day(0), Value: 10}, {Date: day(1), Value: 11}}
		res, err := calc.Calculate(vals, partial, 30)
		require.NoError(t, err)
		assert.Nil(t, res.Metric.BetaSP500)
		assert.Empty(t, res.Warnings)
	})

	t.Run("flat benchmark", func(t *testing.T) {
		res, err := calc.Calculate(vals, bench(50, 50, 50, 50), 30)
		require.NoError(t, err)
		assert.Nil(t, res.Metric.BetaSP500)
		assert.Nil(t, res.Metric.CorrelationSP500)
	})
}

func TestRolling(t *testing.T) {
	vals := series(100, 110, 90, 95, 99)
	metrics, err := NewCalculator(nil).Rolling(vals, nil, 3)
	require.NoError(t, err)
	require.Len(t, metrics, 4)

	assert.Equal(t, day(1), metrics[0].Date)
	assert.Equal(t, 1, metrics[0].Observations)
	assert.Equal(t, 2, metrics[3].Observations)

	// 마지막 윈도우: 90, 95, 99
	assert.InDelta(t, 0.1, metrics[3].TotalReturn, 1e-12)
	assert.Equal(t, 0.0, metrics[3].MaxDrawdown)

	last, err := NewCalculator(nil).Calculate(vals, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, last.Metric, metrics[3])
}
