package audit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-index/internal/contracts"
)

func TestRepository_SaveAndLatest(t *testing.T) {
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

	empty, err := repo.LatestMetric(ctx, seriesID)
	require.NoError(t, err)
	assert.Nil(t, empty)

	metrics := []contracts.RiskMetric{
		{Date: day(1), Window: 20, Observations: 1, TotalReturn: 0.01, VaR95: contracts.Float(-0.02)},
		{Date: day(2), Window: 20, Observations: 2, TotalReturn: 0.03, SharpeRatio: 1.2},
	}
	require.NoError(t, repo.SaveMetrics(ctx, seriesID, metrics))

	// 재저장은 upsert
	metrics[1].SharpeRatio = 1.5
	require.NoError(t, repo.SaveMetrics(ctx, seriesID, metrics))

	latest, err := repo.LatestMetric(ctx, seriesID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Date.Equal(day(2)))
	assert.InDelta(t, 1.5, latest.SharpeRatio, 1e-12)
	assert.Nil(t, latest.VaR95)
	assert.Nil(t, latest.BetaSP500)
}
