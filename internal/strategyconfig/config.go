package strategyconfig

import (
	"slices"
	"time"
)

// Config는 인덱스 구성 전략의 전체 설정
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Weights   Weights   `yaml:"weights" json:"weights"`
	Filters   Filters   `yaml:"filters" json:"filters"`
	Data      Data      `yaml:"data" json:"data"`
	Signals   Signals   `yaml:"signals" json:"signals"`
	Rebalance Rebalance `yaml:"rebalance" json:"rebalance"`
	Risk      Risk      `yaml:"risk" json:"risk"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Weights 팩터 블렌딩 가중치 (합 = 1.0)
type Weights struct {
	Momentum   float64 `yaml:"momentum" json:"momentum"`
	MarketCap  float64 `yaml:"market_cap" json:"market_cap"`
	RiskParity float64 `yaml:"risk_parity" json:"risk_parity"`
}

// Sum returns the total factor weight
func (w Weights) Sum() float64 {
	return w.Momentum + w.MarketCap + w.RiskParity
}

// Filters 가격/이상 수익률 필터
type Filters struct {
	MinPriceThreshold  float64  `yaml:"min_price_threshold" json:"min_price_threshold"`
	MaxDailyReturn     float64  `yaml:"max_daily_return" json:"max_daily_return"`
	MinDailyReturn     float64  `yaml:"min_daily_return" json:"min_daily_return"`
	DailyDropThreshold float64  `yaml:"daily_drop_threshold" json:"daily_drop_threshold"`
	ExcludeOutliers    bool     `yaml:"exclude_outliers" json:"exclude_outliers"`
	Blacklist          []string `yaml:"blacklist,omitempty" json:"blacklist,omitempty"` // 항상 제외할 자산 ID
}

// Data S0: 가격 정제 파라미터
type Data struct {
	MaxForwardFillDays  int     `yaml:"max_forward_fill_days" json:"max_forward_fill_days"`
	OutlierStdThreshold float64 `yaml:"outlier_std_threshold" json:"outlier_std_threshold"`
	OutlierWindow       int     `yaml:"outlier_window" json:"outlier_window"`
}

// Signals S2: 팩터 윈도우
type Signals struct {
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`
}

// Frequency 리밸런싱 주기
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is a known frequency
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Rebalance 리밸런싱 설정
type Rebalance struct {
	Frequency     Frequency `yaml:"frequency" json:"frequency"`
	LastRebalance time.Time `yaml:"last_rebalance,omitempty" json:"last_rebalance"`
}

// Risk 리스크 지표 설정
type Risk struct {
	Window      int    `yaml:"window" json:"window"`
	BenchmarkID string `yaml:"benchmark_id" json:"benchmark_id"`
}

// DecisionSnapshot 의사결정 스냅샷 (재현성용)
type DecisionSnapshot struct {
	ConfigHash     string    `json:"config_hash"`
	ConfigYAML     string    `json:"config_yaml"`
	StrategyID     string    `json:"strategy_id"`
	GitCommit      string    `json:"git_commit"`
	DataSnapshotID string    `json:"data_snapshot_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Default returns the documented baseline strategy
// ⭐ SSOT: 기본값은 여기서만 정의
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "multi_factor_index",
			Version:    "1",
		},
		Weights: Weights{
			Momentum:   0.4,
			MarketCap:  0.3,
			RiskParity: 0.3,
		},
		Filters: Filters{
			MinPriceThreshold:  1.0,
			MaxDailyReturn:     0.5,
			MinDailyReturn:     -0.5,
			DailyDropThreshold: 0.3,
			ExcludeOutliers:    false,
		},
		Data: Data{
			MaxForwardFillDays:  5,
			OutlierStdThreshold: 4.0,
			OutlierWindow:       20,
		},
		Signals: Signals{
			LookbackDays: 90,
		},
		Rebalance: Rebalance{
			Frequency: FrequencyWeekly,
		},
		Risk: Risk{
			Window:      30,
			BenchmarkID: "SPX",
		},
	}
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Filters.Blacklist = slices.Clone(c.Filters.Blacklist)
	return &cp
}
