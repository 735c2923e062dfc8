package s0_data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/logger"
)

// minOutlierSamples is the smallest trailing sample used for a z-score
const minOutlierSamples = 3

// PrepareOptions controls price cleaning and alignment
type PrepareOptions struct {
	From                time.Time // 포함, zero면 제한 없음
	To                  time.Time // 포함, zero면 제한 없음
	MaxForwardFillDays  int
	OutlierStdThreshold float64
	OutlierWindow       int
}

// Preparer cleans raw price history into an aligned Panel
// ⭐ SSOT: S0 가격 정제/정렬은 여기서만
type Preparer struct {
	log *logger.Logger
}

// NewPreparer creates a preparer
func NewPreparer(log *logger.Logger) *Preparer {
	return &Preparer{log: logger.OrNop(log).WithComponent("preparer")}
}

// Prepare drops invalid rows, de-duplicates, aligns every asset to the union
// calendar, forward-fills short gaps and flags return outliers.
// Assets without any valid price in range land in Panel.Excluded.
func (p *Preparer) Prepare(raw map[string][]contracts.PricePoint, opts PrepareOptions) (*contracts.Panel, error) {
	if opts.MaxForwardFillDays < 0 {
		return nil, &contracts.ConfigurationError{Field: "data.max_forward_fill_days", Message: "must be >= 0"}
	}

	panel := &contracts.Panel{Series: make(map[string]*contracts.CleanedSeries)}
	cleaned := make(map[string][]contracts.PricePoint, len(raw))
	calendar := make(map[time.Time]struct{})

	for _, assetID := range contracts.SortedKeys(raw) {
		rows := cleanRows(raw[assetID], opts.From, opts.To)
		if len(rows) == 0 {
			dq := contracts.DataQualityError{AssetID: assetID, Reason: "no valid prices in range"}
			panel.Excluded = append(panel.Excluded, dq)
			p.log.WithField("asset_id", assetID).Warn("asset excluded: no valid prices in range")
			continue
		}
		cleaned[assetID] = rows
		for _, row := range rows {
			calendar[row.Date] = struct{}{}
		}
	}

	if len(cleaned) == 0 {
		return nil, fmt.Errorf("prepare %d asset(s): %w", len(raw), contracts.ErrEmptyPanel)
	}

	panel.Dates = make([]time.Time, 0, len(calendar))
	for d := range calendar {
		panel.Dates = append(panel.Dates, d)
	}
	sort.Slice(panel.Dates, func(i, j int) bool { return panel.Dates[i].Before(panel.Dates[j]) })

	for assetID, rows := range cleaned {
		series := align(assetID, rows, panel.Dates, opts.MaxForwardFillDays)
		flagOutliers(series, opts.OutlierWindow, opts.OutlierStdThreshold)
		panel.Series[assetID] = series
	}

	p.log.WithFields(map[string]interface{}{
		"assets":   len(panel.Series),
		"excluded": len(panel.Excluded),
		"dates":    len(panel.Dates),
	}).Debug("panel prepared")

	return panel, nil
}

// cleanRows keeps valid closes inside [from, to], sorted by date.
// For a duplicated date the last row in input order wins.
func cleanRows(rows []contracts.PricePoint, from, to time.Time) []contracts.PricePoint {
	byDate := make(map[time.Time]contracts.PricePoint, len(rows))
	for _, row := range rows {
		if !row.IsValid() {
			continue
		}
		row.Date = NormalizeDate(row.Date)
		if !from.IsZero() && row.Date.Before(NormalizeDate(from)) {
			continue
		}
		if !to.IsZero() && row.Date.After(NormalizeDate(to)) {
			continue
		}
		if row.Volume != nil && (math.IsNaN(*row.Volume) || *row.Volume < 0) {
			row.Volume = nil
		}
		byDate[row.Date] = row
	}

	out := make([]contracts.PricePoint, 0, len(byDate))
	for _, row := range byDate {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// align maps an asset's rows onto the calendar
func align(assetID string, rows []contracts.PricePoint, dates []time.Time, maxFF int) *contracts.CleanedSeries {
	series := &contracts.CleanedSeries{
		AssetID: assetID,
		Points:  make([]contracts.CleanPoint, len(dates)),
	}

	j := 0
	seen := false
	gap := 0
	lastClose := 0.0
	prevAvail := 0.0 // 직전 가용 시점 종가 (수익률 기준)
	hasPrev := false

	for i, d := range dates {
		pt := contracts.CleanPoint{Date: d, Status: contracts.StatusMissing}

		switch {
		case j < len(rows) && rows[j].Date.Equal(d):
			pt.Status = contracts.StatusObserved
			pt.Close = rows[j].Close
			pt.Volume = rows[j].Volume
			lastClose = rows[j].Close
			seen = true
			gap = 0
			j++
		case seen:
			gap++
			pt.GapDays = gap
			if gap <= maxFF {
				pt.Status = contracts.StatusFilled
				pt.Close = lastClose
			}
		}

		if pt.Available() {
			if hasPrev {
				pt.Return = pt.Close/prevAvail - 1
				pt.HasReturn = true
			}
			prevAvail = pt.Close
			hasPrev = true
		}

		series.Points[i] = pt
	}

	return series
}

// flagOutliers sets z-scores on observed returns against the trailing
// window of earlier observed returns
func flagOutliers(series *contracts.CleanedSeries, window int, threshold float64) {
	if window < 2 || threshold <= 0 {
		return
	}

	history := make([]float64, 0, len(series.Points))
	for i := range series.Points {
		pt := &series.Points[i]
		if pt.Status != contracts.StatusObserved || !pt.HasReturn {
			continue
		}

		trailing := history
		if len(trailing) > window {
			trailing = trailing[len(trailing)-window:]
		}

		if len(trailing) >= minOutlierSamples {
			mean, _ := stats.Mean(trailing)
			std, _ := stats.StandardDeviationSample(trailing)
			if std > 0 && !math.IsNaN(std) {
				pt.ZScore = (pt.Return - mean) / std
				pt.Outlier = math.Abs(pt.ZScore) > threshold
			}
		}

		history = append(history, pt.Return)
	}
}

// NormalizeDate truncates t to its calendar day, re-expressed in UTC
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
