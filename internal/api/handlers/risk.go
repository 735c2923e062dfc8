package handlers

import (
	"net/http"

	"github.com/wonny/aegis-index/internal/audit"
	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/risk"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// RiskObserver counts served risk reports
type RiskObserver interface {
	IncRiskReport(cached bool)
}

// RiskHandler serves risk metrics
type RiskHandler struct {
	calc     *risk.Calculator
	reporter *audit.Reporter // nil이면 /latest 비활성
	store    *strategyconfig.Store
	seriesID string
	observer RiskObserver
	logger   *logger.Logger
}

// NewRiskHandler creates a new risk handler. reporter and observer may be nil.
func NewRiskHandler(reporter *audit.Reporter, store *strategyconfig.Store, seriesID string, observer RiskObserver, log *logger.Logger) *RiskHandler {
	log = logger.OrNop(log)
	return &RiskHandler{
		calc:     risk.NewCalculator(log),
		reporter: reporter,
		store:    store,
		seriesID: seriesID,
		observer: observer,
		logger:   log,
	}
}

// RiskMetricsRequest is an index series to measure
type RiskMetricsRequest struct {
	Values    []PointInput `json:"values"`
	Benchmark []PointInput `json:"benchmark,omitempty"`
	Window    int          `json:"window,omitempty"` // 기본: 전략 설정
	Rolling   bool         `json:"rolling,omitempty"`
}

// RiskMetricsResponse is the metric at the last date plus warnings
type RiskMetricsResponse struct {
	Metric   contracts.RiskMetric   `json:"metric"`
	Warnings []string               `json:"warnings,omitempty"`
	Series   []contracts.RiskMetric `json:"series,omitempty"`
}

// Metrics computes risk metrics for a posted series
// POST /api/risk/metrics
func (h *RiskHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	var req RiskMetricsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	values, err := toValues(req.Values)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	bench, err := toBenchmark(req.Benchmark)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	window := req.Window
	if window == 0 {
		window = h.store.Snapshot().Risk.Window
	}

	res, err := h.calc.Calculate(values, bench, window)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	resp := RiskMetricsResponse{Metric: res.Metric, Warnings: res.WarningMessages()}
	if req.Rolling {
		resp.Series, err = h.calc.Rolling(values, bench, window)
		if err != nil {
			respondEngineError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// Latest returns the cached risk report of the stored series
// GET /api/risk/latest
func (h *RiskHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		respondError(w, http.StatusServiceUnavailable, "risk reporting requires a database")
		return
	}

	cfg := h.store.Snapshot()
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	report, cached, err := h.reporter.Latest(r.Context(), audit.ReportRequest{
		SeriesID:    h.seriesID,
		ConfigHash:  hash,
		BenchmarkID: cfg.Risk.BenchmarkID,
		Window:      cfg.Risk.Window,
	})
	if err != nil {
		h.logger.WithError(err).Warn("Risk report failed")
		respondEngineError(w, err)
		return
	}

	if h.observer != nil {
		h.observer.IncRiskReport(cached)
	}
	respondJSON(w, http.StatusOK, report)
}
