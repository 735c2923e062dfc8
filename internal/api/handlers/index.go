package handlers

import (
	"net/http"

	"github.com/wonny/aegis-index/internal/backtest"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// IndexHandler serves index computation
// ⭐ SSOT: 인덱스 계산 API 핸들러는 이 구조체에서만
type IndexHandler struct {
	engine *backtest.Engine
	store  *strategyconfig.Store
	logger *logger.Logger
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(engine *backtest.Engine, store *strategyconfig.Store, log *logger.Logger) *IndexHandler {
	return &IndexHandler{
		engine: engine,
		store:  store,
		logger: logger.OrNop(log),
	}
}

// ComputeRequest is a full price snapshot to run the engine over
type ComputeRequest struct {
	Prices            []PriceInput           `json:"prices"`
	Benchmark         []PointInput           `json:"benchmark,omitempty"`
	SharesOutstanding map[string]float64     `json:"shares_outstanding,omitempty"`
	Universe          []string               `json:"universe,omitempty"`
	Config            *strategyconfig.Config `json:"config,omitempty"` // 없으면 현재 전략
	From              string                 `json:"from,omitempty"`
	To                string                 `json:"to,omitempty"`
}

// Compute runs the engine over the posted snapshot
// POST /api/index/compute
func (h *IndexHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := h.buildInput(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Run(r.Context(), in)
	if err != nil {
		h.logger.WithError(err).WithField("assets", len(in.Prices)).Warn("Index compute failed")
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (h *IndexHandler) buildInput(req ComputeRequest) (backtest.Input, error) {
	prices, err := toPrices(req.Prices)
	if err != nil {
		return backtest.Input{}, err
	}
	bench, err := toBenchmark(req.Benchmark)
	if err != nil {
		return backtest.Input{}, err
	}
	from, err := parseOptionalDay(req.From)
	if err != nil {
		return backtest.Input{}, err
	}
	to, err := parseOptionalDay(req.To)
	if err != nil {
		return backtest.Input{}, err
	}

	cfg := req.Config
	if cfg == nil {
		cfg = h.store.Snapshot()
	}

	return backtest.Input{
		Prices:            prices,
		Benchmark:         bench,
		SharesOutstanding: req.SharesOutstanding,
		Universe:          req.Universe,
		Config:            cfg,
		From:              from,
		To:                to,
	}, nil
}
