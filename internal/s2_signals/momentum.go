package s2_signals

import (
	"sort"

	"github.com/wonny/aegis-index/pkg/logger"
)

// MomentumCalculator calculates momentum signals
// ⭐ SSOT: 모멘텀 시그널 계산은 여기서만
type MomentumCalculator struct {
	logger *logger.Logger
}

// NewMomentumCalculator creates a new momentum calculator
func NewMomentumCalculator(log *logger.Logger) *MomentumCalculator {
	return &MomentumCalculator{
		logger: logger.OrNop(log),
	}
}

// Calculate returns raw window returns and their percentile ranks in [0, 1].
// Ties share the average of the ranks they span.
func (c *MomentumCalculator) Calculate(windows []*assetWindow) (raw, scores map[string]float64) {
	raw = make(map[string]float64, len(windows))
	for _, w := range windows {
		raw[w.AssetID] = c.calculateReturn(w)
	}

	ranks := averageRanks(raw)
	scores = make(map[string]float64, len(ranks))
	n := len(ranks)
	for id, rank := range ranks {
		if n < 2 {
			scores[id] = 0
			continue
		}
		scores[id] = rank / float64(n-1)
	}

	c.logger.WithField("assets", n).Debug("Calculated momentum ranks")
	return raw, scores
}

// calculateReturn calculates price return over the window
func (c *MomentumCalculator) calculateReturn(w *assetWindow) float64 {
	if len(w.Closes) < 2 {
		return 0.0
	}
	start := w.Closes[0]
	if start <= 0 {
		return 0.0
	}
	return w.Last()/start - 1
}

// averageRanks assigns 0-based ascending ranks, averaging ties
func averageRanks(values map[string]float64) map[string]float64 {
	type entry struct {
		id    string
		value float64
	}
	entries := make([]entry, 0, len(values))
	for id, v := range values {
		entries = append(entries, entry{id, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value < entries[j].value
		}
		return entries[i].id < entries[j].id
	})

	ranks := make(map[string]float64, len(entries))
	for i := 0; i < len(entries); {
		j := i
		for j+1 < len(entries) && entries[j+1].value == entries[i].value {
			j++
		}
		avg := float64(i+j) / 2
		for k := i; k <= j; k++ {
			ranks[entries[k].id] = avg
		}
		i = j + 1
	}
	return ranks
}
