package handlers

import (
	"net/http"

	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// StrategyHandler exposes the live strategy config
// ⭐ SSOT: 전략 설정 API 핸들러는 이 구조체에서만
type StrategyHandler struct {
	store  *strategyconfig.Store
	logger *logger.Logger
}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler(store *strategyconfig.Store, log *logger.Logger) *StrategyHandler {
	return &StrategyHandler{
		store:  store,
		logger: logger.OrNop(log),
	}
}

// StrategyResponse is the current config, its hash and soft warnings
type StrategyResponse struct {
	Config   *strategyconfig.Config   `json:"config"`
	Hash     string                   `json:"hash"`
	Warnings []strategyconfig.Warning `json:"warnings,omitempty"`
	Override *strategyconfig.Override `json:"override,omitempty"`
}

func (h *StrategyHandler) respondConfig(w http.ResponseWriter, cfg *strategyconfig.Config) {
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to hash strategy config")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := StrategyResponse{
		Config:   cfg,
		Hash:     hash,
		Warnings: strategyconfig.Warn(cfg),
	}
	if o, ok := h.store.LastOverride(); ok {
		resp.Override = &o
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns the live config
// GET /api/strategy
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respondConfig(w, h.store.Snapshot())
}

// Put replaces the live config after validation
// PUT /api/strategy
func (h *StrategyHandler) Put(w http.ResponseWriter, r *http.Request) {
	var cfg strategyconfig.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Replace(&cfg); err != nil {
		respondEngineError(w, err)
		return
	}

	h.logger.WithField("strategy_id", cfg.Meta.StrategyID).Info("Strategy config replaced")
	h.respondConfig(w, h.store.Snapshot())
}

// Override replaces the factor weights wholesale
// POST /api/strategy/override
func (h *StrategyHandler) Override(w http.ResponseWriter, r *http.Request) {
	var o strategyconfig.Override
	if err := decodeJSON(w, r, &o); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.store.ApplyOverride(o)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"source":      o.Source,
		"confidence":  o.Confidence,
		"momentum":    cfg.Weights.Momentum,
		"market_cap":  cfg.Weights.MarketCap,
		"risk_parity": cfg.Weights.RiskParity,
	}).Info("Strategy override applied")

	h.respondConfig(w, cfg)
}
