package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
)

// maxBodyBytes caps request bodies (price panels can be large)
const maxBodyBytes = 32 << 20

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"` // configuration, insufficient_universe, insufficient_data
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// respondEngineError maps the engine error taxonomy onto HTTP statuses
func respondEngineError(w http.ResponseWriter, err error) {
	var cfgErr *contracts.ConfigurationError
	var iu *contracts.InsufficientUniverseError

	switch {
	case errors.As(err, &cfgErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "configuration", Field: cfgErr.Field})
	case errors.As(err, &iu):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: "insufficient_universe"})
	case errors.Is(err, contracts.ErrEmptyPanel),
		errors.Is(err, contracts.ErrInsufficientData),
		errors.Is(err, contracts.ErrNonPositiveValue),
		errors.Is(err, contracts.ErrNonIncreasingDate):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Kind: "insufficient_data"})
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "computation timed out")
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeJSON reads a bounded JSON body, rejecting unknown fields
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("invalid request body: trailing data")
	}
	return nil
}

// parseDay accepts YYYY-MM-DD or RFC3339, returning the UTC calendar day
func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
		}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// parseOptionalDay returns zero time for an empty string
func parseOptionalDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseDay(s)
}

// ============================================================
// Wire types (날짜는 문자열)
// ============================================================

// PriceInput is one price row in a request
type PriceInput struct {
	AssetID string   `json:"asset_id"`
	Date    string   `json:"date"`
	Close   *float64 `json:"close"` // null = 결측
	Volume  *float64 `json:"volume,omitempty"`
}

// PointInput is one dated level (benchmark or index value)
type PointInput struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// AllocationInput is one prior weight
type AllocationInput struct {
	AssetID string  `json:"asset_id"`
	Weight  float64 `json:"weight"`
}

func toPrices(rows []PriceInput) (map[string][]contracts.PricePoint, error) {
	out := make(map[string][]contracts.PricePoint)
	for i, row := range rows {
		if row.AssetID == "" {
			return nil, fmt.Errorf("prices[%d]: asset_id is required", i)
		}
		date, err := parseDay(row.Date)
		if err != nil {
			return nil, fmt.Errorf("prices[%d]: %w", i, err)
		}
		pt := contracts.PricePoint{AssetID: row.AssetID, Date: date, Volume: row.Volume}
		if row.Close != nil {
			pt.Close = *row.Close
		}
		out[row.AssetID] = append(out[row.AssetID], pt)
	}
	return out, nil
}

func toBenchmark(rows []PointInput) ([]contracts.BenchmarkPoint, error) {
	if rows == nil {
		return nil, nil
	}
	out := make([]contracts.BenchmarkPoint, 0, len(rows))
	for i, row := range rows {
		date, err := parseDay(row.Date)
		if err != nil {
			return nil, fmt.Errorf("benchmark[%d]: %w", i, err)
		}
		out = append(out, contracts.BenchmarkPoint{Date: date, Value: row.Value})
	}
	return out, nil
}

func toValues(rows []PointInput) ([]contracts.IndexValue, error) {
	out := make([]contracts.IndexValue, 0, len(rows))
	for i, row := range rows {
		date, err := parseDay(row.Date)
		if err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
		out = append(out, contracts.IndexValue{Date: date, Value: row.Value})
	}
	return out, nil
}
