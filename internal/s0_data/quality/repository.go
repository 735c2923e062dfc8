package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-index/internal/contracts"
)

// Repository handles data quality snapshot persistence
// ⭐ SSOT: S0 품질 스냅샷 저장/조회
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot saves a data quality snapshot for a series
func (r *Repository) SaveSnapshot(ctx context.Context, seriesID string, snapshot *contracts.DataQualitySnapshot) error {
	coverageJSON, err := json.Marshal(snapshot.Coverage)
	if err != nil {
		return fmt.Errorf("marshal coverage: %w", err)
	}

	query := `
		INSERT INTO audit.data_quality_snapshots (
			series_id, snapshot_date, quality_score, total_assets, valid_assets,
			outlier_count, excluded_count, coverage, passed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (series_id, snapshot_date) DO UPDATE SET
			quality_score = EXCLUDED.quality_score,
			total_assets = EXCLUDED.total_assets,
			valid_assets = EXCLUDED.valid_assets,
			outlier_count = EXCLUDED.outlier_count,
			excluded_count = EXCLUDED.excluded_count,
			coverage = EXCLUDED.coverage,
			passed = EXCLUDED.passed,
			updated_at = NOW()
	`

	_, err = r.pool.Exec(ctx, query,
		seriesID,
		snapshot.Date,
		snapshot.QualityScore,
		snapshot.TotalAssets,
		snapshot.ValidAssets,
		snapshot.OutlierCount,
		snapshot.ExcludedCount,
		coverageJSON,
		snapshot.Passed,
	)
	if err != nil {
		return fmt.Errorf("save quality snapshot: %w", err)
	}

	return nil
}

// GetByDate retrieves a quality snapshot by date (nil when absent)
func (r *Repository) GetByDate(ctx context.Context, seriesID string, date time.Time) (*contracts.DataQualitySnapshot, error) {
	query := `
		SELECT snapshot_date, quality_score, total_assets, valid_assets,
			outlier_count, excluded_count, coverage, passed
		FROM audit.data_quality_snapshots
		WHERE series_id = $1 AND snapshot_date = $2
	`

	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx, query, seriesID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quality snapshot: %w", err)
	}
	return snapshot, nil
}

// GetLatest retrieves the most recent quality snapshot (nil when absent)
func (r *Repository) GetLatest(ctx context.Context, seriesID string) (*contracts.DataQualitySnapshot, error) {
	query := `
		SELECT snapshot_date, quality_score, total_assets, valid_assets,
			outlier_count, excluded_count, coverage, passed
		FROM audit.data_quality_snapshots
		WHERE series_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx, query, seriesID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest quality snapshot: %w", err)
	}
	return snapshot, nil
}

func scanSnapshot(row pgx.Row) (*contracts.DataQualitySnapshot, error) {
	snapshot := &contracts.DataQualitySnapshot{}
	var coverageJSON []byte

	if err := row.Scan(
		&snapshot.Date,
		&snapshot.QualityScore,
		&snapshot.TotalAssets,
		&snapshot.ValidAssets,
		&snapshot.OutlierCount,
		&snapshot.ExcludedCount,
		&coverageJSON,
		&snapshot.Passed,
	); err != nil {
		return nil, err
	}

	snapshot.Coverage = make(map[string]float64)
	if len(coverageJSON) > 0 {
		if err := json.Unmarshal(coverageJSON, &snapshot.Coverage); err != nil {
			return nil, fmt.Errorf("unmarshal coverage: %w", err)
		}
	}

	return snapshot, nil
}
