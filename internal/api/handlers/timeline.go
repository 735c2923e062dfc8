package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/logger"
)

// TimelineReader reads a persisted index timeline
type TimelineReader interface {
	LatestValue(ctx context.Context, seriesID string) (*contracts.IndexValue, error)
	LoadValues(ctx context.Context, seriesID string, from, to time.Time) ([]contracts.IndexValue, error)
	LoadAllocations(ctx context.Context, seriesID string, date time.Time) (contracts.Allocations, error)
	LoadEvents(ctx context.Context, runID string) ([]contracts.Event, error)
}

// openEnd is the upper bound of an unbounded range query
var openEnd = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// TimelineHandler serves the stored index series (read only)
type TimelineHandler struct {
	repo     TimelineReader
	seriesID string
	logger   *logger.Logger
}

// NewTimelineHandler creates a timeline handler for the default series
func NewTimelineHandler(repo TimelineReader, seriesID string, log *logger.Logger) *TimelineHandler {
	return &TimelineHandler{
		repo:     repo,
		seriesID: seriesID,
		logger:   logger.OrNop(log).WithComponent("handler.timeline"),
	}
}

// series returns ?series= or the default series
func (h *TimelineHandler) series(r *http.Request) string {
	if s := r.URL.Query().Get("series"); s != "" {
		return s
	}
	return h.seriesID
}

// Values returns stored index values in [from, to]
// GET /api/index/values?from=&to=&series=
func (h *TimelineHandler) Values(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseOptionalDay(q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseOptionalDay(q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.IsZero() {
		to = openEnd
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "from must not be after to")
		return
	}

	values, err := h.repo.LoadValues(r.Context(), h.series(r), from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load index values")
		respondError(w, http.StatusInternalServerError, "Failed to load index values")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"series_id": h.series(r),
		"values":    values,
		"count":     len(values),
	})
}

// Latest returns the most recent stored value
// GET /api/index/latest?series=
func (h *TimelineHandler) Latest(w http.ResponseWriter, r *http.Request) {
	v, err := h.repo.LatestValue(r.Context(), h.series(r))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load latest index value")
		respondError(w, http.StatusInternalServerError, "Failed to load latest index value")
		return
	}
	if v == nil {
		respondError(w, http.StatusNotFound, "series has no values")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Allocations returns the allocation held on ?date= (default: latest)
// GET /api/index/allocations?date=&series=
func (h *TimelineHandler) Allocations(w http.ResponseWriter, r *http.Request) {
	date, err := parseOptionalDay(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if date.IsZero() {
		date = openEnd
	}

	allocs, err := h.repo.LoadAllocations(r.Context(), h.series(r), date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load allocations")
		respondError(w, http.StatusInternalServerError, "Failed to load allocations")
		return
	}
	if len(allocs) == 0 {
		respondError(w, http.StatusNotFound, "no allocation on or before date")
		return
	}
	respondJSON(w, http.StatusOK, allocs)
}

// Events returns the events recorded for a run
// GET /api/index/runs/{id}/events
func (h *TimelineHandler) Events(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	events, err := h.repo.LoadEvents(r.Context(), runID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load run events")
		respondError(w, http.StatusInternalServerError, "Failed to load run events")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"events": events,
	})
}
