package s0_data

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-index/internal/contracts"
)

// PriceRepository implements contracts.PriceRepository
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// LoadPrices retrieves closes for the given assets within [from, to].
// An empty assetIDs slice loads every asset in the table.
func (r *PriceRepository) LoadPrices(ctx context.Context, assetIDs []string, from, to time.Time) (map[string][]contracts.PricePoint, error) {
	query := `
		SELECT asset_id, trade_date, close_price, volume
		FROM data.daily_prices
		WHERE trade_date BETWEEN $1 AND $2
		  AND (cardinality($3::text[]) = 0 OR asset_id = ANY($3))
		ORDER BY asset_id, trade_date ASC
	`

	if assetIDs == nil {
		assetIDs = []string{}
	}

	rows, err := r.pool.Query(ctx, query, from, to, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]contracts.PricePoint)
	for rows.Next() {
		var p contracts.PricePoint
		var closePrice *float64 // NULL 종가 → NaN (Preparer가 제거)
		if err := rows.Scan(&p.AssetID, &p.Date, &closePrice, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Close = math.NaN()
		if closePrice != nil {
			p.Close = *closePrice
		}
		out[p.AssetID] = append(out[p.AssetID], p)
	}
	return out, rows.Err()
}

// LoadBenchmark retrieves benchmark levels within [from, to]
func (r *PriceRepository) LoadBenchmark(ctx context.Context, benchmarkID string, from, to time.Time) ([]contracts.BenchmarkPoint, error) {
	query := `
		SELECT trade_date, value
		FROM data.benchmark_values
		WHERE benchmark_id = $1 AND trade_date BETWEEN $2 AND $3 AND value > 0
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, benchmarkID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query benchmark: %w", err)
	}
	defer rows.Close()

	var points []contracts.BenchmarkPoint
	for rows.Next() {
		var b contracts.BenchmarkPoint
		if err := rows.Scan(&b.Date, &b.Value); err != nil {
			return nil, fmt.Errorf("scan benchmark: %w", err)
		}
		points = append(points, b)
	}
	return points, rows.Err()
}

// LoadSharesOutstanding retrieves the latest share count per asset
func (r *PriceRepository) LoadSharesOutstanding(ctx context.Context, assetIDs []string) (map[string]float64, error) {
	query := `
		SELECT DISTINCT ON (asset_id) asset_id, shares
		FROM data.shares_outstanding
		WHERE cardinality($1::text[]) = 0 OR asset_id = ANY($1)
		ORDER BY asset_id, as_of DESC
	`

	if assetIDs == nil {
		assetIDs = []string{}
	}

	rows, err := r.pool.Query(ctx, query, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("query shares outstanding: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var shares float64
		if err := rows.Scan(&id, &shares); err != nil {
			return nil, fmt.Errorf("scan shares outstanding: %w", err)
		}
		if shares > 0 {
			out[id] = shares
		}
	}
	return out, rows.Err()
}

// SavePrices upserts raw price rows in one batch
func (r *PriceRepository) SavePrices(ctx context.Context, prices []contracts.PricePoint) error {
	if len(prices) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO data.daily_prices (asset_id, trade_date, close_price, volume)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_id, trade_date) DO UPDATE SET
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume`

	queued := 0
	for _, p := range prices {
		if !p.IsValid() {
			continue
		}
		batch.Queue(query, p.AssetID, NormalizeDate(p.Date), p.Close, p.Volume)
		queued++
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert price: %w", err)
		}
	}
	return nil
}

// SaveBenchmark upserts benchmark levels in one batch
func (r *PriceRepository) SaveBenchmark(ctx context.Context, benchmarkID string, points []contracts.BenchmarkPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO data.benchmark_values (benchmark_id, trade_date, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (benchmark_id, trade_date) DO UPDATE SET
			value = EXCLUDED.value`

	for _, b := range points {
		batch.Queue(query, benchmarkID, NormalizeDate(b.Date), b.Value)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert benchmark: %w", err)
		}
	}
	return nil
}

// Compile-time interface check
var _ contracts.PriceRepository = (*PriceRepository)(nil)
