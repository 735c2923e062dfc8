package quality

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testPanel() *contracts.Panel {
	return &contracts.Panel{
		Dates: []time.Time{day(2), day(3), day(4), day(5)},
		Series: map[string]*contracts.CleanedSeries{
			"AAA": {AssetID: "AAA", Points: []contracts.CleanPoint{
				{Status: contracts.StatusObserved, Close: 10},
				{Status: contracts.StatusObserved, Close: 11, HasReturn: true},
				{Status: contracts.StatusObserved, Close: 12, HasReturn: true},
				{Status: contracts.StatusObserved, Close: 13, HasReturn: true},
			}},
			"BBB": {AssetID: "BBB", Points: []contracts.CleanPoint{
				{Status: contracts.StatusObserved, Close: 20},
				{Status: contracts.StatusFilled, Close: 20, HasReturn: true},
				{Status: contracts.StatusObserved, Close: 40, HasReturn: true, Outlier: true},
				{Status: contracts.StatusMissing},
			}},
		},
		Excluded: []contracts.DataQualityError{{AssetID: "CCC", Reason: "no valid prices in range"}},
	}
}

func TestGate_Check(t *testing.T) {
	gate := NewGate(DefaultConfig())
	snapshot := gate.Check(testPanel(), 2)

	require.NotNil(t, snapshot)
	assert.Equal(t, day(4), snapshot.Date)
	assert.Equal(t, 3, snapshot.TotalAssets)
	assert.Equal(t, 2, snapshot.ValidAssets)
	assert.Equal(t, 1, snapshot.ExcludedCount)
	assert.Equal(t, 1, snapshot.OutlierCount)

	// 당일 가용 2/3, 관측 5/9, ffill 1/9, 이상치 1/4
	assert.InDelta(t, 2.0/3.0, snapshot.Coverage["available"], 1e-9)
	assert.InDelta(t, 5.0/9.0, snapshot.Coverage["observed"], 1e-9)
	assert.InDelta(t, 1.0/9.0, snapshot.Coverage["filled"], 1e-9)
	assert.InDelta(t, 0.25, snapshot.Coverage["outlier"], 1e-9)

	assert.False(t, snapshot.Passed, "available coverage below 0.8")
	assert.GreaterOrEqual(t, snapshot.QualityScore, 0.0)
	assert.LessOrEqual(t, snapshot.QualityScore, 1.0)
}

func TestGate_CheckPassing(t *testing.T) {
	panel := testPanel()
	panel.Excluded = nil
	delete(panel.Series, "BBB")

	snapshot := NewGate(DefaultConfig()).Check(panel, 3)
	assert.True(t, snapshot.Passed)
	assert.InDelta(t, 1.0, snapshot.QualityScore, 1e-9)
	assert.False(t, snapshot.IsValid(), "a single asset cannot form an index")
}

func TestGate_CheckOutOfRange(t *testing.T) {
	snapshot := NewGate(DefaultConfig()).Check(testPanel(), 9)
	assert.Equal(t, 0, snapshot.TotalAssets)
	assert.False(t, snapshot.Passed)

	snapshot = NewGate(DefaultConfig()).Check(nil, 0)
	assert.NotNil(t, snapshot.Coverage)
}

func TestGate_calculateScore(t *testing.T) {
	gate := &Gate{config: Config{}}

	tests := []struct {
		name     string
		coverage map[string]float64
		want     float64
	}{
		{"perfect", map[string]float64{"available": 1, "observed": 1, "outlier": 0}, 1.0},
		{"half available", map[string]float64{"available": 0.5, "observed": 0.5, "outlier": 0}, 0.55},
		{"empty", map[string]float64{}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, gate.calculateScore(tt.coverage), 1e-9)
		})
	}
}

func TestRepository_SaveSnapshot(t *testing.T) {
	connString := os.Getenv("TEST_DATABASE_URL")
	if testing.Short() || connString == "" {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "database connection failed")
	defer db.Close()

	repo := NewRepository(db)
	seriesID := "test_" + uuid.NewString()[:8]

	none, err := repo.GetLatest(ctx, seriesID)
	require.NoError(t, err)
	assert.Nil(t, none)

	snapshot := NewGate(DefaultConfig()).Check(testPanel(), 2)
	require.NoError(t, repo.SaveSnapshot(ctx, seriesID, snapshot))
	require.NoError(t, repo.SaveSnapshot(ctx, seriesID, snapshot)) // upsert

	got, err := repo.GetByDate(ctx, seriesID, snapshot.Date)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot.ValidAssets, got.ValidAssets)
	assert.InDelta(t, snapshot.Coverage["available"], got.Coverage["available"], 1e-9)
}
