package commands

import (
	"github.com/spf13/cobra"
)

// 전역 플래그
var (
	strategyPath string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Index - 멀티팩터 인덱스 산출 & 리스크 분석 엔진",
	Long: `가격 이력으로 멀티팩터 인덱스를 산출하고 리스크 지표를 계산합니다.
모멘텀/시가총액/리스크 패리티 점수 블렌딩 → 인덱스 합성 → 리스크 분석.

입력 파일(--prices, --benchmark, --shares, --previous)은 로컬 경로 또는 http(s) URL.
DB/Redis 설정은 환경변수(.env)에서 읽고, 전략은 --strategy YAML에서 읽습니다.`,
	Example: `  quant compute --prices prices.csv --benchmark spx.csv --out-index index.csv
  quant rebalance check --prices prices.csv --previous alloc.csv
  quant risk report --refresh
  quant config validate strategy.yaml
  quant db import --prices prices.csv
  quant api
  quant scheduler start`,
	SilenceUsage: true,
}

// SetVersion sets the string printed by --version
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the command tree; main calls it once
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyPath, "strategy", "", "strategy YAML (기본: STRATEGY_PATH 또는 내장 기본값)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug 로그 출력")
}
