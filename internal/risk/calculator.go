package risk

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/logger"
)

// TradingDaysPerYear is the annualisation factor
const TradingDaysPerYear = 252

// Result is a risk metric plus non-fatal warnings
type Result struct {
	Metric   contracts.RiskMetric `json:"metric"`
	Returns  []float64            `json:"-"`
	Warnings []error              `json:"-"`
}

// WarningMessages returns the warnings as strings
func (r *Result) WarningMessages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Error())
	}
	return out
}

// Calculator computes risk metrics over a trailing window (순수 계산기)
// ⭐ SSOT: 인덱스 리스크/성과 지표 계산은 여기서만
type Calculator struct {
	logger *logger.Logger
}

// NewCalculator creates a risk calculator
func NewCalculator(log *logger.Logger) *Calculator {
	return &Calculator{logger: logger.OrNop(log).WithComponent("risk")}
}

// Calculate computes metrics over the last window observations of values.
// benchmark may be nil; beta and correlation are then null.
func (c *Calculator) Calculate(values []contracts.IndexValue, benchmark []contracts.BenchmarkPoint, window int) (*Result, error) {
	if err := checkInput(values, window); err != nil {
		return nil, err
	}

	bench := benchmarkIndex(benchmark)
	res := compute(values, bench, window)
	if benchmark != nil && slices.ContainsFunc(res.Warnings, IsAlignmentWarning) {
		c.logger.WithField("date", res.Metric.Date.Format("2006-01-02")).
			Warn("benchmark alignment failed, beta/correlation are null")
	}
	return res, nil
}

// Rolling computes one metric per date, each over the trailing window
// ending at that date. The first date has no returns and is skipped.
func (c *Calculator) Rolling(values []contracts.IndexValue, benchmark []contracts.BenchmarkPoint, window int) ([]contracts.RiskMetric, error) {
	if err := checkInput(values, window); err != nil {
		return nil, err
	}

	bench := benchmarkIndex(benchmark)
	out := make([]contracts.RiskMetric, 0, len(values))
	for end := 1; end < len(values); end++ {
		out = append(out, compute(values[:end+1], bench, window).Metric)
	}

	c.logger.WithFields(map[string]interface{}{
		"window":  window,
		"metrics": len(out),
	}).Debug("rolling risk metrics computed")

	return out, nil
}

// checkInput validates the window and the value series
func checkInput(values []contracts.IndexValue, window int) error {
	if window < 2 {
		return &contracts.ConfigurationError{Field: "risk.window", Message: fmt.Sprintf("must be >= 2, got %d", window)}
	}
	if len(values) == 0 {
		return fmt.Errorf("risk metrics: %w", contracts.ErrInsufficientData)
	}
	for i, v := range values {
		if v.Value <= 0 || math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return fmt.Errorf("risk metrics at %s: %w", v.Date.Format("2006-01-02"), contracts.ErrNonPositiveValue)
		}
		if i > 0 && !v.Date.After(values[i-1].Date) {
			return fmt.Errorf("risk metrics at %s: %w", v.Date.Format("2006-01-02"), contracts.ErrNonIncreasingDate)
		}
	}
	return nil
}

// compute assumes validated input
func compute(values []contracts.IndexValue, bench map[time.Time]float64, window int) *Result {
	if len(values) > window {
		values = values[len(values)-window:]
	}

	last := values[len(values)-1]
	res := &Result{Returns: simpleReturns(values)}
	m := &res.Metric
	m.Date = last.Date
	m.Window = window
	m.Observations = len(res.Returns)

	// 1. 수익률
	m.TotalReturn = sanitizeValue(last.Value/values[0].Value - 1)
	if n := len(res.Returns); n > 0 {
		m.AnnualizedReturn = sanitize(math.Pow(1+m.TotalReturn, float64(TradingDaysPerYear)/float64(n)) - 1)
	}

	// 2. 변동성 / Sharpe / Sortino
	mean := 0.0
	if len(res.Returns) > 0 {
		mean, _ = stats.Mean(res.Returns)
	}
	if vol, ok := annualizedStd(res.Returns); ok {
		m.Volatility = sanitize(vol)
		if vol > 0 {
			m.SharpeRatio = sanitizeValue(mean * TradingDaysPerYear / vol)
		}
	}
	if downside, ok := annualizedStd(negatives(res.Returns)); ok && downside > 0 {
		m.SortinoRatio = sanitizeValue(mean * TradingDaysPerYear / downside)
	}

	// 3. 드로다운
	m.MaxDrawdown, m.CurrentDrawdown = Drawdowns(values)

	// 4. VaR
	if v, ok := HistoricalVaR(res.Returns, 0.95); ok {
		m.VaR95 = sanitize(v)
	}
	if v, ok := HistoricalVaR(res.Returns, 0.99); ok {
		m.VaR99 = sanitize(v)
	}

	// 5. 벤치마크 베타/상관
	if bench != nil {
		p, b, err := alignReturns(values, bench)
		if err != nil {
			res.Warnings = append(res.Warnings, err)
		} else if len(p) >= 2 {
			m.BetaSP500 = beta(p, b)
			m.CorrelationSP500 = correlation(p, b)
		}
	}

	return res
}

// simpleReturns computes V_t/V_{t-1} - 1
func simpleReturns(values []contracts.IndexValue) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, values[i].Value/values[i-1].Value-1)
	}
	return out
}

// annualizedStd returns the sample std × √252; ok is false with < 2 samples
func annualizedStd(returns []float64) (float64, bool) {
	if len(returns) < 2 {
		return 0, false
	}
	std, err := stats.StandardDeviationSample(returns)
	if err != nil || math.IsNaN(std) {
		return 0, false
	}
	return std * math.Sqrt(TradingDaysPerYear), true
}

func negatives(returns []float64) []float64 {
	var out []float64
	for _, r := range returns {
		if r < 0 {
			out = append(out, r)
		}
	}
	return out
}

// benchmarkIndex maps normalised date → positive benchmark value
func benchmarkIndex(points []contracts.BenchmarkPoint) map[time.Time]float64 {
	if points == nil {
		return nil
	}
	out := make(map[time.Time]float64, len(points))
	for _, p := range points {
		if p.Value > 0 && !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			out[dateKey(p.Date)] = p.Value
		}
	}
	return out
}

// alignReturns pairs index and benchmark returns between consecutive shared dates
func alignReturns(values []contracts.IndexValue, bench map[time.Time]float64) ([]float64, []float64, error) {
	type pair struct{ v, b float64 }
	var shared []pair
	for _, v := range values {
		if b, ok := bench[dateKey(v.Date)]; ok {
			shared = append(shared, pair{v.Value, b})
		}
	}
	if len(shared) == 0 {
		return nil, nil, &contracts.AlignmentError{
			Reason: fmt.Sprintf("no benchmark value on any of %d index dates", len(values)),
		}
	}

	p := make([]float64, 0, len(shared))
	b := make([]float64, 0, len(shared))
	for i := 1; i < len(shared); i++ {
		p = append(p, shared[i].v/shared[i-1].v-1)
		b = append(b, shared[i].b/shared[i-1].b-1)
	}
	return p, b, nil
}

// beta is the OLS slope Cov(p,b)/Var(b); nil when Var(b) = 0
func beta(p, b []float64) *float64 {
	varB, err := stats.PopulationVariance(b)
	if err != nil || varB <= 0 {
		return nil
	}
	cov, err := stats.CovariancePopulation(p, b)
	if err != nil {
		return nil
	}
	return sanitize(cov / varB)
}

// correlation is Pearson's r; nil when either side has zero variance
func correlation(p, b []float64) *float64 {
	varP, errP := stats.PopulationVariance(p)
	varB, errB := stats.PopulationVariance(b)
	if errP != nil || errB != nil || varP <= 0 || varB <= 0 {
		return nil
	}
	r, err := stats.Correlation(p, b)
	if err != nil {
		return nil
	}
	return sanitize(r)
}

func dateKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sanitize maps NaN/Inf to nil
func sanitize(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// sanitizeValue maps NaN/Inf to 0
func sanitizeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// IsAlignmentWarning reports whether err is a benchmark alignment problem
func IsAlignmentWarning(err error) bool {
	var ae *contracts.AlignmentError
	return errors.As(err, &ae)
}
