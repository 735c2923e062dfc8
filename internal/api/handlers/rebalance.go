package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// RebalanceHandler serves live rebalance decisions
type RebalanceHandler struct {
	engine *backtest.Engine
	store  *strategyconfig.Store
	logger *logger.Logger
}

// NewRebalanceHandler creates a new rebalance handler
func NewRebalanceHandler(engine *backtest.Engine, store *strategyconfig.Store, log *logger.Logger) *RebalanceHandler {
	return &RebalanceHandler{
		engine: engine,
		store:  store,
		logger: logger.OrNop(log),
	}
}

// RebalanceCheckRequest carries the trailing prices and current weights
type RebalanceCheckRequest struct {
	Prices            []PriceInput       `json:"prices"`
	SharesOutstanding map[string]float64 `json:"shares_outstanding,omitempty"`
	Universe          []string           `json:"universe,omitempty"`
	Previous          []AllocationInput  `json:"previous,omitempty"`
	Now               string             `json:"now,omitempty"` // 기본: 오늘
	Force             bool               `json:"force,omitempty"`
	Commit            bool               `json:"commit,omitempty"` // true면 리밸런싱 시각 기록
}

// Check decides whether to rebalance and returns target weights when due
// POST /api/rebalance/check
func (h *RebalanceHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req RebalanceCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	prices, err := toPrices(req.Prices)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	now, err := parseOptionalDay(req.Now)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if now.IsZero() {
		now = time.Now()
	}

	previous := make(contracts.Allocations, 0, len(req.Previous))
	for _, a := range req.Previous {
		previous = append(previous, contracts.Allocation{Date: now, AssetID: a.AssetID, Weight: a.Weight})
	}

	decision, err := h.engine.Rebalance(r.Context(), backtest.RebalanceRequest{
		Prices:            prices,
		SharesOutstanding: req.SharesOutstanding,
		Universe:          req.Universe,
		Config:            h.store.Snapshot(),
		Previous:          previous,
		Now:               now,
		Force:             req.Force,
	})
	if err != nil {
		h.logger.WithError(err).Warn("Rebalance check failed")
		respondEngineError(w, err)
		return
	}

	if req.Commit && decision.Rebalanced {
		h.store.MarkRebalanced(decision.Date)
	}

	h.logger.WithFields(map[string]interface{}{
		"reason":     decision.Reason,
		"rebalanced": decision.Rebalanced,
		"committed":  req.Commit && decision.Rebalanced,
	}).Info("Rebalance checked")

	respondJSON(w, http.StatusOK, decision)
}
