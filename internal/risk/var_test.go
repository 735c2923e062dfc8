package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoricalVaR(t *testing.T) {
	returns := make([]float64, 0, 101)
	for i := 0; i <= 100; i++ {
		returns = append(returns, float64(i-50)/1000) // -0.05 ~ 0.05
	}

	tests := []struct {
		name       string
		confidence float64
		want       float64
	}{
		{"95%", 0.95, -0.045},
		{"99%", 0.99, -0.049},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HistoricalVaR(returns, tt.confidence)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestHistoricalVaR_Interpolates(t *testing.T) {
	// idx = 0.05 × 3 = 0.15 → -0.10 + 0.15 × 0.05
	got, ok := HistoricalVaR([]float64{0.02, -0.10, -0.05, 0.01}, 0.95)
	assert.True(t, ok)
	assert.InDelta(t, -0.0925, got, 1e-12)
}

func TestHistoricalVaR_Empty(t *testing.T) {
	_, ok := HistoricalVaR(nil, 0.95)
	assert.False(t, ok)
}

func TestHistoricalVaR_BadConfidence(t *testing.T) {
	for _, c := range []float64{0, 1, -0.5, 1.2} {
		_, ok := HistoricalVaR([]float64{-0.01, 0.02}, c)
		assert.False(t, ok, "confidence %v", c)
	}
}

func TestHistoricalVaR_DoesNotReorderInput(t *testing.T) {
	in := []float64{0.03, -0.02, 0.01}
	_, _ = HistoricalVaR(in, 0.95)
	assert.Equal(t, []float64{0.03, -0.02, 0.01}, in)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Equal(t, 5.0, Percentile(sorted, 100))
	assert.Equal(t, 3.0, Percentile(sorted, 50))
	assert.InDelta(t, 1.4, Percentile(sorted, 10), 1e-12)
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestDrawdowns(t *testing.T) {
	maxDD, cur := Drawdowns(series(100, 120, 60, 130, 117))
	assert.InDelta(t, -0.5, maxDD, 1e-12)
	assert.InDelta(t, -0.1, cur, 1e-12)

	maxDD, cur = Drawdowns(nil)
	assert.Equal(t, 0.0, maxDD)
	assert.Equal(t, 0.0, cur)
}
