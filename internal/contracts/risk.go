package contracts

import "time"

// RiskMetric is a risk/performance snapshot over a trailing window
// ⭐ SSOT: Risk → Audit/API 전달
// Nullable metrics are pointers and serialise as JSON null when undefined.
type RiskMetric struct {
	Date         time.Time `json:"date"`
	Window       int       `json:"window"`
	Observations int       `json:"observations"` // 윈도우 내 수익률 개수

	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`

	Volatility   *float64 `json:"volatility"`
	SharpeRatio  float64  `json:"sharpe_ratio"`
	SortinoRatio float64  `json:"sortino_ratio"`

	MaxDrawdown     float64 `json:"max_drawdown"`     // 음수 (예: -0.15)
	CurrentDrawdown float64 `json:"current_drawdown"` // 음수 또는 0

	VaR95 *float64 `json:"var_95"` // 일간 수익률 기준 (음수 = 손실)
	VaR99 *float64 `json:"var_99"`

	BetaSP500        *float64 `json:"beta_sp500"`
	CorrelationSP500 *float64 `json:"correlation_sp500"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Deref returns *p or 0 when nil
func Deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
