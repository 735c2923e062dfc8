package s0_data

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func pp(asset string, d int, close float64) contracts.PricePoint {
	return contracts.PricePoint{AssetID: asset, Date: day(d), Close: close}
}

func defaultOpts() PrepareOptions {
	return PrepareOptions{MaxForwardFillDays: 2, OutlierStdThreshold: 4, OutlierWindow: 20}
}

func TestPrepare_CleansAndDeduplicates(t *testing.T) {
	raw := map[string][]contracts.PricePoint{
		"AAA": {
			pp("AAA", 3, 12),
			pp("AAA", 1, 10),
			pp("AAA", 2, math.NaN()),
			pp("AAA", 2, 11),
			pp("AAA", 3, 13), // 중복: 마지막 값 사용
			pp("AAA", 4, -5),
			pp("AAA", 5, 0),
		},
	}

	panel, err := NewPreparer(nil).Prepare(raw, defaultOpts())
	require.NoError(t, err)

	require.Equal(t, []time.Time{day(1), day(2), day(3)}, panel.Dates)
	series := panel.Series["AAA"]
	require.Len(t, series.Points, 3)

	assert.Equal(t, 10.0, series.Points[0].Close)
	assert.False(t, series.Points[0].HasReturn, "first point has no return")
	assert.Equal(t, 13.0, series.Points[2].Close)
	assert.InDelta(t, 13.0/11.0-1, series.Points[2].Return, 1e-12)

	for i := 1; i < len(panel.Dates); i++ {
		assert.True(t, panel.Dates[i].After(panel.Dates[i-1]))
	}
}

func TestPrepare_ForwardFillAndGaps(t *testing.T) {
	raw := map[string][]contracts.PricePoint{
		"AAA": {pp("AAA", 1, 10), pp("AAA", 2, 10), pp("AAA", 3, 10), pp("AAA", 4, 10),
			pp("AAA", 5, 10), pp("AAA", 6, 10), pp("AAA", 7, 10), pp("AAA", 8, 10)},
		"BBB": {pp("BBB", 2, 20), pp("BBB", 8, 30)},
	}

	panel, err := NewPreparer(nil).Prepare(raw, defaultOpts())
	require.NoError(t, err)
	require.Equal(t, 8, panel.Len())

	b := panel.Series["BBB"].Points
	assert.Equal(t, contracts.StatusMissing, b[0].Status, "before first valid point")
	assert.Equal(t, contracts.StatusObserved, b[1].Status)
	assert.Equal(t, contracts.StatusFilled, b[2].Status)
	assert.Equal(t, 20.0, b[2].Close)
	assert.Equal(t, 0.0, b[2].Return)
	assert.True(t, b[2].HasReturn)
	assert.Equal(t, contracts.StatusFilled, b[3].Status)
	assert.Equal(t, contracts.StatusMissing, b[4].Status, "gap exceeds max forward fill")
	assert.Equal(t, 3, b[4].GapDays)
	assert.Equal(t, contracts.StatusObserved, b[7].Status)
	assert.InDelta(t, 0.5, b[7].Return, 1e-12, "return vs previous available point")

	assert.Equal(t, []string{"AAA"}, panel.AvailableAt(0))
	assert.Equal(t, []string{"AAA"}, panel.AvailableAt(5))
	assert.Equal(t, []string{"AAA", "BBB"}, panel.AvailableAt(7))
}

func TestPrepare_ZeroForwardFill(t *testing.T) {
	raw := map[string][]contracts.PricePoint{
		"AAA": {pp("AAA", 1, 10), pp("AAA", 2, 11), pp("AAA", 3, 12)},
		"BBB": {pp("BBB", 1, 20), pp("BBB", 3, 22)},
	}

	opts := defaultOpts()
	opts.MaxForwardFillDays = 0
	panel, err := NewPreparer(nil).Prepare(raw, opts)
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusMissing, panel.Series["BBB"].Points[1].Status)
}

func TestPrepare_ExcludedAssets(t *testing.T) {
	raw := map[string][]contracts.PricePoint{
		"AAA": {pp("AAA", 1, 10), pp("AAA", 2, 11)},
		"BAD": {pp("BAD", 1, math.NaN()), pp("BAD", 2, 0)},
	}

	panel, err := NewPreparer(nil).Prepare(raw, defaultOpts())
	require.NoError(t, err)

	assert.NotContains(t, panel.Series, "BAD")
	require.Len(t, panel.Excluded, 1)
	assert.Equal(t, "BAD", panel.Excluded[0].AssetID)
}

func TestPrepare_EmptyPanel(t *testing.T) {
	raw := map[string][]contracts.PricePoint{
		"BAD": {pp("BAD", 1, math.NaN())},
	}

	_, err := NewPreparer(nil).Prepare(raw, defaultOpts())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrEmptyPanel))

	_, err = NewPreparer(nil).Prepare(nil, defaultOpts())
	assert.True(t, errors.Is(err, contracts.ErrEmptyPanel))
}

func TestPrepare_DateRange(t *testing.T) {
	raw := map[string][]contracts.PricePoint{
		"AAA": {pp("AAA", 1, 10), pp("AAA", 2, 11), pp("AAA", 3, 12), pp("AAA", 4, 13)},
		"OLD": {pp("OLD", 1, 5)},
	}

	opts := defaultOpts()
	opts.From = day(2)
	opts.To = day(3).Add(15 * time.Hour)

	panel, err := NewPreparer(nil).Prepare(raw, opts)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2), day(3)}, panel.Dates)
	require.Len(t, panel.Excluded, 1)
	assert.Equal(t, "OLD", panel.Excluded[0].AssetID)
}

func TestPrepare_FlagsOutliers(t *testing.T) {
	closes := []float64{100, 101, 100, 101, 100, 101, 200}
	var rows []contracts.PricePoint
	for i, c := range closes {
		rows = append(rows, pp("AAA", i+1, c))
	}

	panel, err := NewPreparer(nil).Prepare(map[string][]contracts.PricePoint{"AAA": rows}, defaultOpts())
	require.NoError(t, err)

	points := panel.Series["AAA"].Points
	last := points[len(points)-1]
	assert.True(t, last.Outlier)
	assert.Greater(t, last.ZScore, 4.0)
	assert.Equal(t, 200.0, last.Close, "outliers are retained")

	// 표본 3개 미만이면 z-score 없음
	assert.False(t, points[2].Outlier)
	assert.Equal(t, 0.0, points[2].ZScore)

	for _, pt := range points[:len(points)-1] {
		assert.False(t, pt.Outlier)
	}
}

func TestPrepare_NegativeForwardFill(t *testing.T) {
	opts := defaultOpts()
	opts.MaxForwardFillDays = -1
	_, err := NewPreparer(nil).Prepare(map[string][]contracts.PricePoint{"A": {pp("A", 1, 1)}}, opts)
	assert.True(t, contracts.IsHardFailure(err))
}
