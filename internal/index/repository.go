package index

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

// Repository handles index timeline persistence
// ⭐ SSOT: 인덱스 값/배분 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new index repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendRun writes one run's values, allocations and events.
// Writers of the same series are serialised by a transaction-scoped
// advisory lock; rows are upserted so re-running the same input is safe.
func (r *Repository) AppendRun(ctx context.Context, run *contracts.RunRecord) error {
	if run == nil || run.SeriesID == "" {
		return fmt.Errorf("append run: series id is required")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 같은 시계열 쓰기 직렬화
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", run.SeriesID); err != nil {
		return fmt.Errorf("failed to acquire series lock: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO index.runs (run_id, series_id, config_hash, value_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO NOTHING
	`, run.RunID, run.SeriesID, run.ConfigHash, len(run.Values), createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	batch := &pgx.Batch{}

	for _, v := range run.Values {
		batch.Queue(`
			INSERT INTO index.index_values (series_id, value_date, value, run_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (series_id, value_date) DO UPDATE SET
				value = EXCLUDED.value,
				run_id = EXCLUDED.run_id
		`, run.SeriesID, v.Date, v.Value, run.RunID)
	}

	// 날짜별로 현재 구성 외 종목 행만 정리 후 upsert
	byDate := make(map[time.Time][]string)
	for _, a := range run.Allocations {
		byDate[a.Date] = append(byDate[a.Date], a.AssetID)
	}
	for date, ids := range byDate {
		batch.Queue(`
			DELETE FROM index.allocations
			WHERE series_id = $1 AND alloc_date = $2 AND NOT (asset_id = ANY($3))
		`, run.SeriesID, date, ids)
	}
	for _, a := range run.Allocations {
		batch.Queue(`
			INSERT INTO index.allocations (series_id, alloc_date, asset_id, weight, run_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (series_id, alloc_date, asset_id) DO UPDATE SET
				weight = EXCLUDED.weight,
				run_id = EXCLUDED.run_id
		`, run.SeriesID, a.Date, a.AssetID, a.Weight, run.RunID)
	}

	for seq, e := range run.Events {
		batch.Queue(`
			INSERT INTO index.run_events (run_id, seq, event_date, kind, asset_id, detail)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (run_id, seq) DO NOTHING
		`, run.RunID, seq, e.Date, string(e.Kind), e.AssetID, e.Detail)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to write run row %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LatestValue returns the most recent index value, nil if the series is empty
func (r *Repository) LatestValue(ctx context.Context, seriesID string) (*contracts.IndexValue, error) {
	query := `
		SELECT value_date, value
		FROM index.index_values
		WHERE series_id = $1
		ORDER BY value_date DESC
		LIMIT 1
	`

	var v contracts.IndexValue
	err := r.pool.QueryRow(ctx, query, seriesID).Scan(&v.Date, &v.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest value: %w", err)
	}

	return &v, nil
}

// LoadValues returns index values in [from, to], oldest first
func (r *Repository) LoadValues(ctx context.Context, seriesID string, from, to time.Time) ([]contracts.IndexValue, error) {
	query := `
		SELECT value_date, value
		FROM index.index_values
		WHERE series_id = $1 AND value_date BETWEEN $2 AND $3
		ORDER BY value_date
	`

	rows, err := r.pool.Query(ctx, query, seriesID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query index values: %w", err)
	}
	defer rows.Close()

	values := make([]contracts.IndexValue, 0)
	for rows.Next() {
		var v contracts.IndexValue
		if err := rows.Scan(&v.Date, &v.Value); err != nil {
			return nil, fmt.Errorf("failed to scan index value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return values, nil
}

// LoadAllocations returns the allocation on the latest date <= date
func (r *Repository) LoadAllocations(ctx context.Context, seriesID string, date time.Time) (contracts.Allocations, error) {
	query := `
		SELECT alloc_date, asset_id, weight
		FROM index.allocations
		WHERE series_id = $1
		  AND alloc_date = (
			SELECT MAX(alloc_date) FROM index.allocations
			WHERE series_id = $1 AND alloc_date <= $2
		  )
		ORDER BY asset_id
	`

	rows, err := r.pool.Query(ctx, query, seriesID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	allocs := make(contracts.Allocations, 0)
	for rows.Next() {
		var a contracts.Allocation
		if err := rows.Scan(&a.Date, &a.AssetID, &a.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocs = append(allocs, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return allocs, nil
}

// LoadEvents returns the events recorded for a run
func (r *Repository) LoadEvents(ctx context.Context, runID string) ([]contracts.Event, error) {
	query := `
		SELECT event_date, kind, asset_id, detail
		FROM index.run_events
		WHERE run_id = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	events := make([]contracts.Event, 0)
	for rows.Next() {
		var e contracts.Event
		var kind string
		if err := rows.Scan(&e.Date, &kind, &e.AssetID, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		e.Kind = contracts.EventKind(kind)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

// MarshalRun renders a run record as JSON for export
func MarshalRun(run *contracts.RunRecord) ([]byte, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run %s: %w", run.RunID, err)
	}
	return data, nil
}

var _ contracts.IndexRepository = (*Repository)(nil)
