package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/backtest"
)

// rebalanceCmd groups rebalance utilities
var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "리밸런싱 판단",
}

var rebalanceCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "지정 시점의 리밸런싱 여부와 목표 비중 계산",
	Long: `리밸런싱 주기와 마지막 리밸런싱 날짜로 도래 여부를 판단하고,
도래했으면 새 목표 비중을 계산합니다. 유니버스가 부족하면 기존 비중을 유지합니다.

Example:
  go run ./cmd/quant rebalance check --prices prices.csv --last-rebalance 2024-01-31
  go run ./cmd/quant rebalance check --prices prices.csv --previous alloc.csv --force`,
	RunE: runRebalanceCheck,
}

var (
	rebalancePrices   string
	rebalanceShares   string
	rebalanceUniverse string
	rebalancePrevious string
	rebalanceNow      string
	rebalanceLast     string
	rebalanceForce    bool
	rebalanceJSON     bool
)

func init() {
	rootCmd.AddCommand(rebalanceCmd)
	rebalanceCmd.AddCommand(rebalanceCheckCmd)

	f := rebalanceCheckCmd.Flags()
	f.StringVar(&rebalancePrices, "prices", "", "가격 CSV (필수)")
	f.StringVar(&rebalanceShares, "shares", "", "발행주식수 CSV")
	f.StringVar(&rebalanceUniverse, "universe", "", "구성 후보 (쉼표 구분)")
	f.StringVar(&rebalancePrevious, "previous", "", "현재 보유 배분 CSV (최신 날짜만 사용)")
	f.StringVar(&rebalanceNow, "now", "", "판단 시점 (YYYY-MM-DD, 기본: 오늘)")
	f.StringVar(&rebalanceLast, "last-rebalance", "", "마지막 리밸런싱 날짜 (설정값 대체)")
	f.BoolVar(&rebalanceForce, "force", false, "주기와 무관하게 리밸런싱")
	f.BoolVar(&rebalanceJSON, "json", false, "JSON 출력")

	_ = rebalanceCheckCmd.MarkFlagRequired("prices")
}

func runRebalanceCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	strategy, err := loadStrategy(cfg)
	if err != nil {
		return err
	}

	req := backtest.RebalanceRequest{
		Config:   strategy,
		Universe: splitList(rebalanceUniverse),
		Force:    rebalanceForce,
		Now:      time.Now(),
	}
	ctx := context.Background()
	src := inputSource(log)
	if req.Prices, err = src.Prices(ctx, rebalancePrices); err != nil {
		return err
	}
	if rebalanceShares != "" {
		if req.SharesOutstanding, err = src.Shares(ctx, rebalanceShares); err != nil {
			return err
		}
	}
	if rebalancePrevious != "" {
		if req.Previous, err = src.Allocations(ctx, rebalancePrevious); err != nil {
			return err
		}
	}
	if rebalanceNow != "" {
		if req.Now, err = parseFlagDate("now", rebalanceNow); err != nil {
			return err
		}
	}
	if rebalanceLast != "" {
		last, err := parseFlagDate("last-rebalance", rebalanceLast)
		if err != nil {
			return err
		}
		strategy.Rebalance.LastRebalance = last
	}

	decision, err := backtest.NewEngine(log).Rebalance(ctx, req)
	if err != nil {
		return fmt.Errorf("rebalance check: %w", err)
	}

	if rebalanceJSON {
		return writeJSON(decision)
	}

	printDecision(decision)
	return nil
}

func printDecision(d *backtest.RebalanceDecision) {
	status := "not due"
	switch {
	case d.Rebalanced:
		status = "rebalanced"
	case d.Retained:
		status = "retained"
	}

	PrintHeader("Rebalance " + formatDate(d.Date))
	PrintKeyValue("Status", status, 8)
	PrintKeyValue("Reason", d.Reason, 8)
	if d.Detail != "" {
		PrintKeyValue("Detail", d.Detail, 8)
	}
	if d.NextRebalance != nil {
		PrintKeyValue("Next", formatDate(*d.NextRebalance), 8)
	}
	if len(d.Held) > 0 {
		PrintKeyValue("Held", strings.Join(d.Held, ", "), 8)
	}
	PrintSeparator()

	printAllocations(d.Allocations)

	for _, dq := range d.Excluded {
		PrintWarning(fmt.Sprintf("excluded %s: %s", dq.AssetID, dq.Reason))
	}
}
