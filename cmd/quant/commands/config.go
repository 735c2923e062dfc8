package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-index/internal/strategyconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "전략 설정 검증/조회",
	Long:  `전략 YAML 설정을 검증하고 정규화된 형태와 해시를 출력합니다.`,
	Example: `  quant config validate strategy.yaml
  quant config validate strategy.yaml --json
  quant config show --strategy strategy.yaml
  quant config snapshot --git-commit $(git rev-parse HEAD)`,
}

var (
	validateJSON      bool
	snapshotGitCommit string
	snapshotDataID    string
)

// validation is the --json form of `config validate`
type validation struct {
	Path       string                   `json:"path"`
	StrategyID string                   `json:"strategy_id"`
	Version    string                   `json:"version"`
	Hash       string                   `json:"hash"`
	Warnings   []strategyconfig.Warning `json:"warnings"`
}

func init() {
	validate := &cobra.Command{
		Use:   "validate [path]",
		Short: "설정 검증 (오류는 exit 1, 경고는 출력만)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigValidate,
	}
	validate.Flags().BoolVar(&validateJSON, "json", false, "JSON 출력")

	show := &cobra.Command{
		Use:   "show",
		Short: "기본값이 적용된 최종 설정 YAML 출력",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}

	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "감사용 결정 스냅샷 JSON 출력",
		Args:  cobra.NoArgs,
		RunE:  runConfigSnapshot,
	}
	snapshot.Flags().StringVar(&snapshotGitCommit, "git-commit", "", "코드 버전")
	snapshot.Flags().StringVar(&snapshotDataID, "data-snapshot", "", "입력 데이터 식별자")

	configCmd.AddCommand(validate, show, snapshot)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := strategyPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no strategy file given (use an argument or --strategy)")
	}

	cfg, _, err := strategyconfig.Load(path)
	if err != nil {
		if !validateJSON {
			PrintError(err.Error())
		}
		return err
	}

	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return err
	}
	v := validation{
		Path:       path,
		StrategyID: cfg.Meta.StrategyID,
		Version:    cfg.Meta.Version,
		Hash:       hash,
		Warnings:   strategyconfig.Warn(cfg),
	}

	if validateJSON {
		return writeJSON(v)
	}

	PrintHeader("Strategy " + v.StrategyID)
	PrintKeyValue("File", path, 9)
	PrintKeyValue("Version", v.Version, 9)
	PrintKeyValue("Hash", hash, 9)
	PrintKeyValue("Weights", fmt.Sprintf("momentum=%.2f market_cap=%.2f risk_parity=%.2f",
		cfg.Weights.Momentum, cfg.Weights.MarketCap, cfg.Weights.RiskParity), 9)
	PrintKeyValue("Rebalance", string(cfg.Rebalance.Frequency), 9)
	PrintSeparator()

	for _, w := range v.Warnings {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	PrintSuccess(fmt.Sprintf("valid (%d warning(s))", len(v.Warnings)))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}
	sc, err := loadStrategy(cfg)
	if err != nil {
		return err
	}

	out, err := strategyconfig.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// runConfigSnapshot keeps the file's own YAML when one is given, so the
// snapshot reproduces exactly what was reviewed
func runConfigSnapshot(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadRuntime()
	if err != nil {
		return err
	}
	sc, raw, _, err := resolveStrategy(cfg)
	if err != nil {
		return err
	}

	snap, err := strategyconfig.NewDecisionSnapshot(sc, raw, snapshotGitCommit, snapshotDataID)
	if err != nil {
		return err
	}
	return writeJSON(snap)
}

// writeJSON prints v as indented JSON on stdout
func writeJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
