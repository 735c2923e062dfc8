package portfolio

import (
	"fmt"
	"sort"

	"github.com/wonny/aegis-index/internal/contracts"
)

// ScreenResult splits a universe into scoreable and held assets
type ScreenResult struct {
	Eligible    []string          `json:"eligible"`
	Held        []string          `json:"held"`
	Blacklisted []string          `json:"blacklisted,omitempty"`
	Reasons     map[string]string `json:"reasons"` // held/blacklisted asset → 사유
}

// Screen applies the daily-return anomaly filters to each asset's most
// recent return. Anomalous assets are held at their previous weight rather
// than re-scored; blacklisted assets are dropped entirely.
func Screen(panel *contracts.Panel, dateIdx int, universe []string, c Constraints) ScreenResult {
	res := ScreenResult{Reasons: make(map[string]string)}

	ids := append([]string(nil), universe...)
	sort.Strings(ids)

	for _, id := range ids {
		if c.IsBlacklisted(id) {
			res.Blacklisted = append(res.Blacklisted, id)
			res.Reasons[id] = "blacklisted"
			continue
		}

		series, ok := panel.Series[id]
		if !ok {
			res.Eligible = append(res.Eligible, id) // 스코어러가 제외 처리
			continue
		}
		pt, _ := series.At(dateIdx)

		if reason := anomaly(pt, c); reason != "" {
			res.Held = append(res.Held, id)
			res.Reasons[id] = reason
			continue
		}
		res.Eligible = append(res.Eligible, id)
	}

	return res
}

// anomaly returns a non-empty reason when the point's return breaches a filter
func anomaly(pt contracts.CleanPoint, c Constraints) string {
	if !pt.Available() || !pt.HasReturn {
		return ""
	}
	r := pt.Return
	switch {
	case r > c.MaxDailyReturn:
		return fmt.Sprintf("daily return %.4f above max %.4f", r, c.MaxDailyReturn)
	case r < c.MinDailyReturn:
		return fmt.Sprintf("daily return %.4f below min %.4f", r, c.MinDailyReturn)
	case c.DailyDropThreshold > 0 && r <= -c.DailyDropThreshold:
		return fmt.Sprintf("daily drop %.4f breaches threshold %.4f", r, c.DailyDropThreshold)
	case c.ExcludeOutliers && pt.Outlier:
		return fmt.Sprintf("return outlier (z=%.2f)", pt.ZScore)
	}
	return ""
}
