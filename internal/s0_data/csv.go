package s0_data

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/wonny/aegis-index/internal/contracts"
)

// priceRow is one line of an asset_id,date,close,volume file
type priceRow struct {
	AssetID string `csv:"asset_id"`
	Date    string `csv:"date"`
	Close   string `csv:"close"`
	Volume  string `csv:"volume,omitempty"`
}

// benchmarkRow is one line of a date,value file
type benchmarkRow struct {
	Date  string `csv:"date"`
	Value string `csv:"value"`
}

// sharesRow is one line of an asset_id,shares file
type sharesRow struct {
	AssetID string  `csv:"asset_id"`
	Shares  float64 `csv:"shares"`
}

// indexRow is the CSV export shape of an index value
type indexRow struct {
	Date  string  `csv:"date"`
	Value float64 `csv:"value"`
}

// allocationRow is the CSV export shape of an allocation
type allocationRow struct {
	Date    string  `csv:"date"`
	AssetID string  `csv:"asset_id"`
	Weight  float64 `csv:"weight"`
}

// ReadPricesCSV parses raw prices grouped by asset.
// An empty or unparsable close is kept as NaN so the preparer drops it.
func ReadPricesCSV(r io.Reader) (map[string][]contracts.PricePoint, error) {
	var rows []priceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse price csv: %w", err)
	}

	out := make(map[string][]contracts.PricePoint)
	for i, row := range rows {
		assetID := strings.TrimSpace(row.AssetID)
		if assetID == "" {
			return nil, fmt.Errorf("price csv line %d: asset_id required", i+2)
		}
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: %w", i+2, err)
		}

		pt := contracts.PricePoint{
			AssetID: assetID,
			Date:    date,
			Close:   parseFloatOrNaN(row.Close),
		}
		if v := strings.TrimSpace(row.Volume); v != "" {
			if vol, err := strconv.ParseFloat(v, 64); err == nil {
				pt.Volume = &vol
			}
		}
		out[assetID] = append(out[assetID], pt)
	}

	return out, nil
}

// ReadBenchmarkCSV parses a benchmark level series, skipping null values
func ReadBenchmarkCSV(r io.Reader) ([]contracts.BenchmarkPoint, error) {
	var rows []benchmarkRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse benchmark csv: %w", err)
	}

	out := make([]contracts.BenchmarkPoint, 0, len(rows))
	for i, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("benchmark csv line %d: %w", i+2, err)
		}
		value := parseFloatOrNaN(row.Value)
		if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
			continue
		}
		out = append(out, contracts.BenchmarkPoint{Date: date, Value: value})
	}

	return out, nil
}

// ReadSharesCSV parses shares outstanding per asset
func ReadSharesCSV(r io.Reader) (map[string]float64, error) {
	var rows []sharesRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse shares csv: %w", err)
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.Shares > 0 {
			out[strings.TrimSpace(row.AssetID)] = row.Shares
		}
	}
	return out, nil
}

// ReadAllocationsCSV parses date,asset_id,weight rows and keeps only the
// latest date, which is the allocation currently held
func ReadAllocationsCSV(r io.Reader) (contracts.Allocations, error) {
	var rows []allocationRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse allocation csv: %w", err)
	}

	var (
		latest time.Time
		out    contracts.Allocations
	)
	for i, row := range rows {
		date, err := parseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("allocation csv line %d: %w", i+2, err)
		}
		switch {
		case date.After(latest):
			latest = date
			out = out[:0]
		case date.Before(latest):
			continue
		}
		out = append(out, contracts.Allocation{Date: date, AssetID: strings.TrimSpace(row.AssetID), Weight: row.Weight})
	}
	return out, nil
}

// WriteIndexCSV writes date,value rows
func WriteIndexCSV(w io.Writer, values []contracts.IndexValue) error {
	rows := make([]indexRow, 0, len(values))
	for _, v := range values {
		rows = append(rows, indexRow{Date: v.Date.Format(time.DateOnly), Value: v.Value})
	}
	return gocsv.Marshal(rows, w)
}

// WriteAllocationsCSV writes date,asset_id,weight rows
func WriteAllocationsCSV(w io.Writer, allocs []contracts.Allocation) error {
	rows := make([]allocationRow, 0, len(allocs))
	for _, a := range allocs {
		rows = append(rows, allocationRow{Date: a.Date.Format(time.DateOnly), AssetID: a.AssetID, Weight: a.Weight})
	}
	return gocsv.Marshal(rows, w)
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return NormalizeDate(t), nil
}

func parseFloatOrNaN(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
