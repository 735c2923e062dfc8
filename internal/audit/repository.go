package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-index/internal/contracts"
)

// Repository handles risk metric persistence
// ⭐ SSOT: 리스크 지표 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveMetrics upserts metrics keyed by (series, date, window)
func (r *Repository) SaveMetrics(ctx context.Context, seriesID string, metrics []contracts.RiskMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	query := `
		INSERT INTO index.risk_metrics (
			series_id, metric_date, window_days, observations,
			total_return, annualized_return, volatility,
			sharpe_ratio, sortino_ratio, max_drawdown, current_drawdown,
			var_95, var_99, beta, correlation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (series_id, metric_date, window_days) DO UPDATE SET
			observations = EXCLUDED.observations,
			total_return = EXCLUDED.total_return,
			annualized_return = EXCLUDED.annualized_return,
			volatility = EXCLUDED.volatility,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			sortino_ratio = EXCLUDED.sortino_ratio,
			max_drawdown = EXCLUDED.max_drawdown,
			current_drawdown = EXCLUDED.current_drawdown,
			var_95 = EXCLUDED.var_95,
			var_99 = EXCLUDED.var_99,
			beta = EXCLUDED.beta,
			correlation = EXCLUDED.correlation
	`

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(query,
			seriesID, m.Date, m.Window, m.Observations,
			m.TotalReturn, m.AnnualizedReturn, m.Volatility,
			m.SharpeRatio, m.SortinoRatio, m.MaxDrawdown, m.CurrentDrawdown,
			m.VaR95, m.VaR99, m.BetaSP500, m.CorrelationSP500,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range metrics {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save risk metric %s: %w", metrics[i].Date.Format("2006-01-02"), err)
		}
	}

	return nil
}

// LatestMetric returns the most recent metric, nil if none is stored
func (r *Repository) LatestMetric(ctx context.Context, seriesID string) (*contracts.RiskMetric, error) {
	query := `
		SELECT metric_date, window_days, observations,
			total_return, annualized_return, volatility,
			sharpe_ratio, sortino_ratio, max_drawdown, current_drawdown,
			var_95, var_99, beta, correlation
		FROM index.risk_metrics
		WHERE series_id = $1
		ORDER BY metric_date DESC, window_days DESC
		LIMIT 1
	`

	var m contracts.RiskMetric
	err := r.pool.QueryRow(ctx, query, seriesID).Scan(
		&m.Date, &m.Window, &m.Observations,
		&m.TotalReturn, &m.AnnualizedReturn, &m.Volatility,
		&m.SharpeRatio, &m.SortinoRatio, &m.MaxDrawdown, &m.CurrentDrawdown,
		&m.VaR95, &m.VaR99, &m.BetaSP500, &m.CorrelationSP500,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest risk metric: %w", err)
	}

	return &m, nil
}

var _ contracts.RiskRepository = (*Repository)(nil)
