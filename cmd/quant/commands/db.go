package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/database"
)

// dbCmd groups database utilities
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 유틸리티",
}

var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "PostgreSQL 연결 테스트",
	Long: `데이터베이스 연결을 테스트하고 풀 통계를 표시합니다.

Example:
  go run ./cmd/quant db check`,
	RunE: runDBCheck,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 생성 (idempotent)",
	RunE:  runDBMigrate,
}

var dbImportCmd = &cobra.Command{
	Use:   "import",
	Short: "CSV 가격/벤치마크 적재",
	Long: `CSV 파일을 data 스키마에 적재합니다. 같은 (자산, 날짜)는 덮어씁니다.

Example:
  go run ./cmd/quant db import --prices prices.csv
  go run ./cmd/quant db import --benchmark spx.csv --benchmark-id SPX`,
	RunE: runDBImport,
}

var (
	importPrices      string
	importBenchmark   string
	importBenchmarkID string
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbCheckCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbImportCmd)

	dbImportCmd.Flags().StringVar(&importPrices, "prices", "", "가격 CSV")
	dbImportCmd.Flags().StringVar(&importBenchmark, "benchmark", "", "벤치마크 CSV")
	dbImportCmd.Flags().StringVar(&importBenchmarkID, "benchmark-id", "", "벤치마크 ID (기본: 전략의 risk.benchmark_id)")
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Index Database Connection Test ===")

	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	fmt.Printf("✅ Config loaded (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("❌ Failed to connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ Health check failed: %w", err)
	}

	fmt.Println("✅ Health Check Results:")
	fmt.Printf("   Healthy: %v\n", status.Healthy)
	fmt.Printf("   Schema Ready: %v\n", status.SchemaReady)
	fmt.Printf("   Response Time: %v\n", status.ResponseTime)
	fmt.Printf("   Timestamp: %v\n\n", status.Timestamp.Format(time.RFC3339))

	fmt.Println("📊 Connection Pool Statistics:")
	fmt.Printf("   Max Connections: %d\n", status.Stats.MaxConns)
	fmt.Printf("   Total Connections: %d\n", status.Stats.TotalConns)
	fmt.Printf("   Idle Connections: %d\n", status.Stats.IdleConns)
	fmt.Printf("   Acquire Count: %d\n", status.Stats.AcquireCount)

	if !status.SchemaReady {
		PrintWarning("schema missing: run `quant db migrate`")
	}
	return nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}
	PrintSuccess("Schema up to date")
	return nil
}

func runDBImport(cmd *cobra.Command, args []string) error {
	if importPrices == "" && importBenchmark == "" {
		return fmt.Errorf("nothing to import (use --prices and/or --benchmark)")
	}

	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}

	ctx := context.Background()
	b, err := openBackends(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer b.Close()

	src := inputSource(log)
	if importPrices != "" {
		panel, err := src.Prices(ctx, importPrices)
		if err != nil {
			return err
		}
		rows := flattenPrices(panel)
		if err := b.prices.SavePrices(ctx, rows); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Imported %d price rows for %d assets", len(rows), len(panel)))
	}

	if importBenchmark != "" {
		id := importBenchmarkID
		if id == "" {
			strategy, err := loadStrategy(cfg)
			if err != nil {
				return err
			}
			id = strategy.Risk.BenchmarkID
		}
		if id == "" {
			return fmt.Errorf("--benchmark-id required (strategy has no risk.benchmark_id)")
		}

		points, err := src.Benchmark(ctx, importBenchmark)
		if err != nil {
			return err
		}
		if err := b.prices.SaveBenchmark(ctx, id, points); err != nil {
			return err
		}
		PrintSuccess(fmt.Sprintf("Imported %d benchmark rows for %s", len(points), id))
	}
	return nil
}

// flattenPrices orders the panel by asset for a deterministic batch
func flattenPrices(panel map[string][]contracts.PricePoint) []contracts.PricePoint {
	var out []contracts.PricePoint
	for _, id := range contracts.SortedKeys(panel) {
		out = append(out, panel[id]...)
	}
	return out
}

// maskPassword masks the password in the database URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
