package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/scheduler"
	"github.com/wonny/aegis-index/internal/strategyconfig"
)

// Rebalance decision reasons
const (
	ReasonDue    = "due"
	ReasonForced = "forced"
	ReasonNotDue = "not_due"
	ReasonStale  = "stale"
)

// RebalanceRequest is the live single-step rebalance input
type RebalanceRequest struct {
	Prices            map[string][]contracts.PricePoint
	SharesOutstanding map[string]float64
	Universe          []string
	Config            *strategyconfig.Config // Rebalance.LastRebalance 사용
	Previous          contracts.Allocations
	Now               time.Time
	Force             bool
}

// RebalanceDecision is either a fresh allocation or the retained one
type RebalanceDecision struct {
	Date          time.Time                    `json:"date"`
	Rebalanced    bool                         `json:"rebalanced"`
	Retained      bool                         `json:"retained"`
	Reason        string                       `json:"reason"`
	Detail        string                       `json:"detail,omitempty"`
	Allocations   contracts.Allocations        `json:"allocations"`
	Held          []string                     `json:"held,omitempty"`
	Events        []contracts.Event            `json:"events,omitempty"`
	Excluded      []contracts.DataQualityError `json:"excluded,omitempty"`
	NextRebalance *time.Time                   `json:"next_rebalance,omitempty"`
}

// Rebalance decides and, when due, computes fresh target weights as of
// req.Now. A universe shortfall retains req.Previous (stale, not an error).
func (e *Engine) Rebalance(ctx context.Context, req RebalanceRequest) (*RebalanceDecision, error) {
	if req.Config == nil {
		return nil, &contracts.ConfigurationError{Field: "config", Message: "is required"}
	}
	cfg := req.Config.Clone()
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	last := cfg.Rebalance.LastRebalance

	decision := &RebalanceDecision{
		Date:        now,
		Allocations: req.Previous,
	}
	if next, ok := scheduler.NextRebalance(last, cfg.Rebalance.Frequency); ok {
		decision.NextRebalance = &next
	}

	if !scheduler.ShouldRebalance(last, cfg.Rebalance.Frequency, now, req.Force) {
		decision.Retained = true
		decision.Reason = ReasonNotDue
		decision.Detail = fmt.Sprintf("%d day(s) since last rebalance", scheduler.ElapsedDays(last, now))
		e.recorder.IncRebalance(OutcomeNotDue)
		return decision, nil
	}

	panel, err := e.preparer.Prepare(req.Prices, prepareOptions(cfg, time.Time{}, now))
	if err != nil {
		return nil, fmt.Errorf("prepare prices: %w", err)
	}
	dateIdx := panel.Len() - 1
	decision.Date = panel.Dates[dateIdx]
	decision.Excluded = append(decision.Excluded, panel.Excluded...)

	in := Input{Prices: req.Prices, Universe: req.Universe}
	w, events, err := e.weigh(panel, dateIdx, universeOf(in), cfg, req.SharesOutstanding, req.Previous.WeightMap())
	decision.Events = events
	if err != nil {
		if !contracts.IsStale(err) {
			return nil, err
		}
		decision.Retained = true
		decision.Reason = ReasonStale
		decision.Detail = err.Error()
		decision.Events = append(decision.Events, staleEvent(decision.Date, err, "prior allocation retained"))
		e.recorder.IncRebalance(OutcomeStale)

		e.logger.WithFields(map[string]interface{}{
			"date":  decision.Date.Format("2006-01-02"),
			"error": err.Error(),
		}).Warn("Rebalance skipped, prior allocation retained")
		return decision, nil
	}

	decision.Rebalanced = true
	decision.Reason = ReasonDue
	if req.Force {
		decision.Reason = ReasonForced
	}
	decision.Allocations = w.Allocations
	decision.Held = w.Held
	decision.Events = append(decision.Events, rebalancedEvent(decision.Date, w.Allocations))
	if next, ok := scheduler.NextRebalance(decision.Date, cfg.Rebalance.Frequency); ok {
		decision.NextRebalance = &next
	}
	e.recorder.IncRebalance(OutcomeRebalanced)

	e.logger.WithFields(map[string]interface{}{
		"date":      decision.Date.Format("2006-01-02"),
		"reason":    decision.Reason,
		"positions": len(w.Allocations),
		"held":      len(w.Held),
	}).Info("Rebalance computed")

	return decision, nil
}
