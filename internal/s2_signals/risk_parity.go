package s2_signals

import (
	"math"

	"github.com/montanaflynn/stats"
)

// RiskParityCalculator scores assets by inverse volatility
type RiskParityCalculator struct{}

// NewRiskParityCalculator creates a new risk parity calculator
func NewRiskParityCalculator() *RiskParityCalculator {
	return &RiskParityCalculator{}
}

// Calculate returns sample volatility per asset, normalised inverse-vol
// scores and the set of assets with zero or undefined volatility.
// Excluded assets score 0.
func (c *RiskParityCalculator) Calculate(windows []*assetWindow) (vol, scores map[string]float64, excluded map[string]bool) {
	vol = make(map[string]float64, len(windows))
	scores = make(map[string]float64, len(windows))
	excluded = make(map[string]bool)

	inv := make(map[string]float64, len(windows))
	total := 0.0
	for _, w := range windows {
		std := sampleStd(w.Returns)
		vol[w.AssetID] = std
		if std <= 0 {
			excluded[w.AssetID] = true
			continue
		}
		inv[w.AssetID] = 1 / std
		total += 1 / std
	}

	for _, w := range windows {
		if excluded[w.AssetID] || total <= 0 {
			scores[w.AssetID] = 0
			continue
		}
		scores[w.AssetID] = inv[w.AssetID] / total
	}
	return vol, scores, excluded
}

// sampleStd returns the n-1 standard deviation, or 0 when undefined
func sampleStd(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	std, err := stats.StandardDeviationSample(returns)
	if err != nil || math.IsNaN(std) || math.IsInf(std, 0) {
		return 0
	}
	return std
}
