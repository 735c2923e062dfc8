package risk

import "github.com/wonny/aegis-index/internal/contracts"

// Drawdowns returns the max and current drawdown of a value series as
// negative fractions (0 when the series never falls below its running max)
func Drawdowns(values []contracts.IndexValue) (maxDD, currentDD float64) {
	if len(values) == 0 {
		return 0, 0
	}

	peak := values[0].Value
	for _, v := range values {
		if v.Value > peak {
			peak = v.Value
		}
		if peak <= 0 {
			continue
		}
		dd := v.Value/peak - 1
		if dd < maxDD {
			maxDD = dd
		}
		currentDD = dd
	}

	return maxDD, currentDD
}
