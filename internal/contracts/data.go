package contracts

import (
	"math"
	"time"
)

// PricePoint is one raw or cleaned daily close for an asset
// ⭐ SSOT: 엔진 입력 가격 레코드 (asset_id, date, close, volume?)
// A missing close arrives as NaN or a non-positive number.
type PricePoint struct {
	AssetID string    `json:"asset_id"`
	Date    time.Time `json:"date"`
	Close   float64   `json:"close"`
	Volume  *float64  `json:"volume,omitempty"`
}

// IsValid reports whether the close can be used (finite and > 0)
func (p PricePoint) IsValid() bool {
	return !math.IsNaN(p.Close) && !math.IsInf(p.Close, 0) && p.Close > 0
}

// BenchmarkPoint is one benchmark level (e.g. S&P 500 close)
type BenchmarkPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// PointStatus describes how a panel cell was produced
type PointStatus int

const (
	StatusMissing  PointStatus = iota // 유니버스 제외 (데이터 없음 또는 ffill 한도 초과)
	StatusObserved                    // 실제 관측값
	StatusFilled                      // forward-fill 값
)

// String returns the status name
func (s PointStatus) String() string {
	switch s {
	case StatusObserved:
		return "observed"
	case StatusFilled:
		return "filled"
	default:
		return "missing"
	}
}

// CleanPoint is a single aligned panel cell
type CleanPoint struct {
	Date      time.Time   `json:"date"`
	Close     float64     `json:"close"`
	Volume    *float64    `json:"volume,omitempty"`
	Status    PointStatus `json:"status"`
	Return    float64     `json:"return"`     // 직전 가용 시점 대비 단순 수익률
	HasReturn bool        `json:"has_return"` // 첫 가용 시점은 false
	Outlier   bool        `json:"outlier"`    // |z| > outlier_std_threshold
	ZScore    float64     `json:"z_score"`
	GapDays   int         `json:"gap_days"` // 연속 결측 일수 (관측일은 0)
}

// Available reports whether the asset is in the universe on this date
func (p CleanPoint) Available() bool {
	return p.Status != StatusMissing
}

// CleanedSeries is an asset's price history aligned to Panel.Dates
// ⭐ SSOT: Preparer 출력, 하위 단계는 읽기 전용으로 사용
type CleanedSeries struct {
	AssetID string       `json:"asset_id"`
	Points  []CleanPoint `json:"points"`
}

// At returns the point at a calendar index
func (s *CleanedSeries) At(idx int) (CleanPoint, bool) {
	if idx < 0 || idx >= len(s.Points) {
		return CleanPoint{}, false
	}
	return s.Points[idx], true
}

// AvailableCount counts available points in [from, to]
func (s *CleanedSeries) AvailableCount(from, to int) int {
	count := 0
	for i := max(from, 0); i <= to && i < len(s.Points); i++ {
		if s.Points[i].Available() {
			count++
		}
	}
	return count
}

// Panel is the cleaned, calendar-aligned price panel
type Panel struct {
	Dates    []time.Time               `json:"dates"`
	Series   map[string]*CleanedSeries `json:"series"`
	Excluded []DataQualityError        `json:"excluded,omitempty"`
}

// Len returns the number of calendar dates
func (p *Panel) Len() int {
	return len(p.Dates)
}

// IndexOf returns the calendar index of date, or -1
func (p *Panel) IndexOf(date time.Time) int {
	for i, d := range p.Dates {
		if d.Equal(date) {
			return i
		}
	}
	return -1
}

// AvailableAt returns the sorted asset ids available at a calendar index
func (p *Panel) AvailableAt(idx int) []string {
	assets := make([]string, 0, len(p.Series))
	for _, id := range p.AssetIDs() {
		if pt, ok := p.Series[id].At(idx); ok && pt.Available() {
			assets = append(assets, id)
		}
	}
	return assets
}

// AssetIDs returns all asset ids in deterministic order
func (p *Panel) AssetIDs() []string {
	return SortedKeys(p.Series)
}

// DataQualitySnapshot summarises panel health at a date
// ⭐ SSOT: S0 데이터 품질 정보 전달
type DataQualitySnapshot struct {
	Date          time.Time          `json:"date"`
	TotalAssets   int                `json:"total_assets"`
	ValidAssets   int                `json:"valid_assets"`
	Coverage      map[string]float64 `json:"coverage"` // observed / filled / outlier 비율
	OutlierCount  int                `json:"outlier_count"`
	ExcludedCount int                `json:"excluded_count"`
	QualityScore  float64            `json:"quality_score"` // 0.0 ~ 1.0
	Passed        bool               `json:"passed"`
}

// IsValid reports whether the snapshot meets the minimum for a trustworthy run:
// a quality score of at least 0.7 and two or more valid assets
func (d *DataQualitySnapshot) IsValid() bool {
	return d.QualityScore >= 0.7 && d.ValidAssets >= 2
}
