package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/strategyconfig"
)

func pointWithReturn(r float64, outlier bool) contracts.CleanPoint {
	return contracts.CleanPoint{Status: contracts.StatusObserved, Close: 10, Return: r, HasReturn: true, Outlier: outlier, ZScore: 5}
}

func screenPanel() *contracts.Panel {
	mk := func(id string, pt contracts.CleanPoint) *contracts.CleanedSeries {
		return &contracts.CleanedSeries{AssetID: id, Points: []contracts.CleanPoint{
			{Status: contracts.StatusObserved, Close: 10}, pt,
		}}
	}
	return &contracts.Panel{
		Dates: []time.Time{testDate, testDate.AddDate(0, 0, 1)},
		Series: map[string]*contracts.CleanedSeries{
			"NORMAL":  mk("NORMAL", pointWithReturn(0.01, false)),
			"SPIKE":   mk("SPIKE", pointWithReturn(0.8, false)),
			"CRASH":   mk("CRASH", pointWithReturn(-0.6, false)),
			"DROP":    mk("DROP", pointWithReturn(-0.3, false)),
			"OUTLIER": mk("OUTLIER", pointWithReturn(0.05, true)),
			"FIRST":   mk("FIRST", contracts.CleanPoint{Status: contracts.StatusObserved, Close: 10}),
		},
	}
}

func TestScreen(t *testing.T) {
	panel := screenPanel()
	universe := []string{"SPIKE", "NORMAL", "CRASH", "DROP", "OUTLIER", "FIRST", "NOHISTORY"}

	res := Screen(panel, 1, universe, DefaultConstraints())
	assert.Equal(t, []string{"FIRST", "NOHISTORY", "NORMAL", "OUTLIER"}, res.Eligible)
	assert.Equal(t, []string{"CRASH", "DROP", "SPIKE"}, res.Held)
	assert.Contains(t, res.Reasons["SPIKE"], "above max")
	assert.Contains(t, res.Reasons["CRASH"], "below min")
	assert.Contains(t, res.Reasons["DROP"], "daily drop")
}

func TestScreen_ExcludeOutliers(t *testing.T) {
	c := DefaultConstraints()
	c.ExcludeOutliers = true

	res := Screen(screenPanel(), 1, []string{"OUTLIER", "NORMAL"}, c)
	assert.Equal(t, []string{"NORMAL"}, res.Eligible)
	assert.Equal(t, []string{"OUTLIER"}, res.Held)
	assert.Contains(t, res.Reasons["OUTLIER"], "outlier")
}

func TestScreen_Blacklist(t *testing.T) {
	cfg := strategyconfig.Default()
	cfg.Filters.Blacklist = []string{"NORMAL", "OUTLIER"}
	c := ConstraintsFromConfig(cfg)

	// 블랙리스트가 이상 수익률 판정보다 우선
	res := Screen(screenPanel(), 1, []string{"NORMAL", "FIRST", "OUTLIER"}, c)
	assert.Equal(t, []string{"FIRST"}, res.Eligible)
	assert.Empty(t, res.Held)
	assert.Equal(t, []string{"NORMAL", "OUTLIER"}, res.Blacklisted)
	assert.Equal(t, "blacklisted", res.Reasons["NORMAL"])
	assert.Equal(t, "blacklisted", res.Reasons["OUTLIER"])

	// Constraints는 설정과 슬라이스를 공유하지 않음
	cfg.Filters.Blacklist[0] = "FIRST"
	assert.True(t, c.IsBlacklisted("NORMAL"))
	assert.False(t, c.IsBlacklisted("FIRST"))
}
