package s2_signals

import (
	"github.com/montanaflynn/stats"
)

// MarketCapCalculator scores assets by (proxy) market capitalisation
type MarketCapCalculator struct{}

// NewMarketCapCalculator creates a new market cap calculator
func NewMarketCapCalculator() *MarketCapCalculator {
	return &MarketCapCalculator{}
}

// Calculate returns raw capitalisation and normalised shares summing to 1.
// Proxy order: close × shares, close × mean volume, close.
func (c *MarketCapCalculator) Calculate(windows []*assetWindow, shares map[string]float64) (raw, scores map[string]float64) {
	raw = make(map[string]float64, len(windows))
	total := 0.0
	for _, w := range windows {
		v := c.capitalisation(w, shares[w.AssetID])
		raw[w.AssetID] = v
		total += v
	}

	scores = make(map[string]float64, len(windows))
	for _, w := range windows {
		if total > 0 {
			scores[w.AssetID] = raw[w.AssetID] / total
		} else {
			scores[w.AssetID] = 1.0 / float64(len(windows))
		}
	}
	return raw, scores
}

func (c *MarketCapCalculator) capitalisation(w *assetWindow, shares float64) float64 {
	last := w.Last()
	if shares > 0 {
		return last * shares
	}
	if len(w.Volumes) > 0 {
		if meanVol, err := stats.Mean(w.Volumes); err == nil && meanVol > 0 {
			return last * meanVol
		}
	}
	return last
}
