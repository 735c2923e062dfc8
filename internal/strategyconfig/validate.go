package strategyconfig

import (
	"fmt"
	"math"
	"strings"

	"github.com/wonny/aegis-index/internal/contracts"
)

// WeightSumTolerance is the allowed deviation of Σweights from 1
const WeightSumTolerance = 1e-3

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func invalid(field, message string) error {
	return &contracts.ConfigurationError{Field: field, Message: message}
}

// Validate checks all required constraints
// 실패 시 *contracts.ConfigurationError 반환 (계산 시작 전 중단)
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("config", "required")
	}

	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return invalid("meta.strategy_id", "required")
	}

	// === Weights ===
	w := cfg.Weights
	for _, f := range []struct {
		field string
		value float64
	}{
		{"weights.momentum", w.Momentum},
		{"weights.market_cap", w.MarketCap},
		{"weights.risk_parity", w.RiskParity},
	} {
		if err := validateFinite(f.value, f.field); err != nil {
			return err
		}
		if f.value < 0 {
			return invalid(f.field, "must be >= 0")
		}
	}
	if math.Abs(w.Sum()-1.0) > WeightSumTolerance {
		return invalid("weights", fmt.Sprintf("must sum to 1.0±%g, got %.4f", WeightSumTolerance, w.Sum()))
	}

	// === Filters ===
	f := cfg.Filters
	if err := validateFinite(f.MinPriceThreshold, "filters.min_price_threshold"); err != nil {
		return err
	}
	if f.MinPriceThreshold <= 0 {
		return invalid("filters.min_price_threshold", "must be > 0")
	}
	if err := validateFinite(f.MinDailyReturn, "filters.min_daily_return"); err != nil {
		return err
	}
	if err := validateFinite(f.MaxDailyReturn, "filters.max_daily_return"); err != nil {
		return err
	}
	if f.MinDailyReturn <= -1 {
		return invalid("filters.min_daily_return", "must be > -1")
	}
	if f.MinDailyReturn >= f.MaxDailyReturn {
		return invalid("filters", "min_daily_return must be < max_daily_return")
	}
	if f.DailyDropThreshold <= 0 || f.DailyDropThreshold > 1 {
		return invalid("filters.daily_drop_threshold", "must be in (0, 1]")
	}
	seen := make(map[string]bool, len(f.Blacklist))
	for _, id := range f.Blacklist {
		if strings.TrimSpace(id) == "" {
			return invalid("filters.blacklist", "asset id must not be empty")
		}
		if seen[id] {
			return invalid("filters.blacklist", fmt.Sprintf("duplicate asset id %q", id))
		}
		seen[id] = true
	}

	// === Data ===
	d := cfg.Data
	if d.MaxForwardFillDays < 0 {
		return invalid("data.max_forward_fill_days", "must be >= 0")
	}
	if err := validateFinite(d.OutlierStdThreshold, "data.outlier_std_threshold"); err != nil {
		return err
	}
	if d.OutlierStdThreshold <= 0 {
		return invalid("data.outlier_std_threshold", "must be > 0")
	}
	if d.OutlierWindow < 2 {
		return invalid("data.outlier_window", "must be >= 2")
	}

	// === Signals ===
	if cfg.Signals.LookbackDays < 2 {
		return invalid("signals.lookback_days", "must be >= 2")
	}

	// === Rebalance ===
	if !cfg.Rebalance.Frequency.Valid() {
		return invalid("rebalance.frequency", fmt.Sprintf("must be daily, weekly or monthly, got %q", cfg.Rebalance.Frequency))
	}

	// === Risk ===
	if cfg.Risk.Window < 2 {
		return invalid("risk.window", "must be >= 2")
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 단일 팩터 쏠림
	w := cfg.Weights
	if w.Momentum >= 0.8 || w.MarketCap >= 0.8 || w.RiskParity >= 0.8 {
		warnings = append(warnings, Warning{
			Code:    "CONCENTRATED_FACTOR",
			Message: "단일 팩터 가중치 >= 0.8: 멀티팩터 분산 효과 약함",
		})
	}

	// 이상치 기준이 너무 낮으면 정상 수익률도 플래그
	if cfg.Data.OutlierStdThreshold < 2 {
		warnings = append(warnings, Warning{
			Code:    "TIGHT_OUTLIER",
			Message: "outlier_std_threshold < 2: 정상 변동도 이상치로 분류될 수 있음",
		})
	}

	if cfg.Signals.LookbackDays < 20 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_LOOKBACK",
			Message: "lookback_days < 20: 모멘텀/변동성 추정 노이즈 큼",
		})
	}

	if cfg.Data.MaxForwardFillDays > 10 {
		warnings = append(warnings, Warning{
			Code:    "LONG_FORWARD_FILL",
			Message: "max_forward_fill_days > 10: 오래된 가격으로 지수 산출 위험",
		})
	}

	if cfg.Filters.ExcludeOutliers && cfg.Rebalance.Frequency == FrequencyDaily {
		warnings = append(warnings, Warning{
			Code:    "HIGH_TURNOVER",
			Message: "daily 리밸런싱 + exclude_outliers: 보유 유지 빈번, 회전율 증가 우려",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateFinite(v float64, field string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(field, "must be finite")
	}
	return nil
}
