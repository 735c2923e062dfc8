package portfolio

import (
	"slices"

	"github.com/wonny/aegis-index/internal/strategyconfig"
)

// Constraints defines the anomaly and price filters applied before weighting
// ⭐ SSOT: 포트폴리오 제약조건은 여기서만
type Constraints struct {
	MinPriceThreshold  float64  // 최소 종가 (미만이면 비중 0)
	MaxDailyReturn     float64  // 일간 수익률 상한
	MinDailyReturn     float64  // 일간 수익률 하한
	DailyDropThreshold float64  // 일간 급락 기준 (양수, r <= -threshold)
	ExcludeOutliers    bool     // z-score 이상치도 이상 수익률로 취급
	Blacklist          []string // filters.blacklist, 항상 제외
}

// IsBlacklisted reports whether an asset is excluded by configuration
func (c *Constraints) IsBlacklisted(assetID string) bool {
	return slices.Contains(c.Blacklist, assetID)
}

// ConstraintsFromConfig maps strategy filters onto Constraints
// SSOT: strategyconfig filters 섹션
func ConstraintsFromConfig(cfg *strategyconfig.Config) Constraints {
	return Constraints{
		MinPriceThreshold:  cfg.Filters.MinPriceThreshold,
		MaxDailyReturn:     cfg.Filters.MaxDailyReturn,
		MinDailyReturn:     cfg.Filters.MinDailyReturn,
		DailyDropThreshold: cfg.Filters.DailyDropThreshold,
		ExcludeOutliers:    cfg.Filters.ExcludeOutliers,
		Blacklist:          slices.Clone(cfg.Filters.Blacklist),
	}
}

// DefaultConstraints returns default constraint configuration
func DefaultConstraints() Constraints {
	return ConstraintsFromConfig(strategyconfig.Default())
}
