package contracts

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	ErrEmptyPanel        = errors.New("no asset survived price preparation")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrTerminal          = errors.New("index timeline is terminal")
	ErrNotStarted        = errors.New("index timeline not started")
	ErrNonPositiveValue  = errors.New("index value became non-positive")
	ErrNonIncreasingDate = errors.New("dates must be strictly increasing")
)

// DataQualityError marks an asset excluded for bad or missing data
// ⭐ 비치명적: 해당 자산만 제외하고 계속 진행
type DataQualityError struct {
	AssetID string    `json:"asset_id"`
	Date    time.Time `json:"date,omitempty"`
	Reason  string    `json:"reason"`
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: asset %s excluded: %s", e.AssetID, e.Reason)
}

// InsufficientUniverseError means fewer than 2 assets could be weighted
// ⭐ 재시도 가능: 직전 배분을 유지하고 다음 날짜에 다시 시도
type InsufficientUniverseError struct {
	Date     time.Time `json:"date"`
	Eligible int       `json:"eligible"`
}

func (e *InsufficientUniverseError) Error() string {
	return fmt.Sprintf("insufficient universe on %s: %d eligible asset(s), need at least 2",
		e.Date.Format("2006-01-02"), e.Eligible)
}

// ConfigurationError is a fatal strategy configuration problem
// ⭐ 치명적: 계산 시작 전에 중단
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// AlignmentError means benchmark and portfolio share no dates
type AlignmentError struct {
	Reason string `json:"reason"`
}

func (e *AlignmentError) Error() string {
	return "alignment: " + e.Reason
}

// IsStale reports whether err means the last good allocation should be kept
func IsStale(err error) bool {
	var iu *InsufficientUniverseError
	return errors.As(err, &iu)
}

// IsHardFailure reports whether err must abort the run
func IsHardFailure(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsDataQuality reports whether err is a per-asset data problem
func IsDataQuality(err error) bool {
	var dq *DataQualityError
	return errors.As(err, &dq)
}
