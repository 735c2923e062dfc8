package backtest

import (
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
)

// Result holds one full engine run
type Result struct {
	RunID      string    `json:"run_id"`
	ConfigHash string    `json:"config_hash"`
	StrategyID string    `json:"strategy_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`

	IndexValues []contracts.IndexValue      `json:"index_values"`
	Allocations contracts.Allocations       `json:"allocations"` // 일자별 실현 비중
	Rebalances  []time.Time                 `json:"rebalances"`
	Events      []contracts.Event           `json:"events"`
	Excluded    []contracts.DataQualityError `json:"excluded"`

	Quality      *contracts.DataQualitySnapshot `json:"quality"`
	Risk         *contracts.RiskMetric          `json:"risk"`
	RiskWarnings []string                       `json:"risk_warnings,omitempty"`
	RiskSeries   []contracts.RiskMetric         `json:"risk_series"`

	Duration time.Duration `json:"duration"`
}

// FinalValue returns the last index value (0 when empty)
func (r *Result) FinalValue() float64 {
	if len(r.IndexValues) == 0 {
		return 0
	}
	return r.IndexValues[len(r.IndexValues)-1].Value
}

// FinalAllocation returns the allocation on the last date
func (r *Result) FinalAllocation() contracts.Allocations {
	var out contracts.Allocations
	for _, a := range r.Allocations {
		if a.Date.Equal(r.EndDate) {
			out = append(out, a)
		}
	}
	return out
}

// LastRebalance returns the most recent rebalance date
func (r *Result) LastRebalance() time.Time {
	if len(r.Rebalances) == 0 {
		return time.Time{}
	}
	return r.Rebalances[len(r.Rebalances)-1]
}

// EventsOf filters events by kind
func (r *Result) EventsOf(kind contracts.EventKind) []contracts.Event {
	var out []contracts.Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Record converts the result into a persistable run record
func (r *Result) Record(seriesID string) *contracts.RunRecord {
	return &contracts.RunRecord{
		RunID:       r.RunID,
		SeriesID:    seriesID,
		ConfigHash:  r.ConfigHash,
		Values:      r.IndexValues,
		Allocations: r.Allocations,
		Events:      r.Events,
		CreatedAt:   time.Now(),
	}
}
