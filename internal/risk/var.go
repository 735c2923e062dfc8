package risk

import (
	"math"
	"slices"
)

// VaR 부호 규약: 일간 수익률 그대로 (음수 = 손실)
// 예: VaR95 = -0.031 → 95% 신뢰수준에서 일간 최대 3.1% 손실

// HistoricalVaR is the empirical (1-confidence) quantile of daily returns.
// ok is false for empty input or a confidence outside (0, 1).
func HistoricalVaR(returns []float64, confidence float64) (float64, bool) {
	if len(returns) == 0 || confidence <= 0 || confidence >= 1 {
		return 0, false
	}
	sorted := slices.Clone(returns)
	slices.Sort(sorted)
	return Percentile(sorted, 100*(1-confidence)), true
}

// Percentile interpolates linearly between the order statistics of an
// ascending slice. p is clamped to [0, 100]; an empty slice yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}

	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
