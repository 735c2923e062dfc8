package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
)

// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일

const (
	dateLayout = "2006-01-02"
	ruleWidth  = 59
)

// PrintHeader prints a titled section header
func PrintHeader(title string) {
	fmt.Printf("\n%s\n  %s\n", strings.Repeat("═", ruleWidth), title)
	PrintSeparator()
}

// PrintSeparator prints a single rule
func PrintSeparator() {
	fmt.Println(strings.Repeat("─", ruleWidth))
}

func PrintWarning(message string) { fmt.Printf("⚠️  %s\n", message) }
func PrintSuccess(message string) { fmt.Printf("✅ %s\n", message) }
func PrintError(message string)   { fmt.Printf("❌ %s\n", message) }
func PrintInfo(message string)    { fmt.Printf("ℹ️  %s\n", message) }

// PrintKeyValue prints an indented "key : value" line
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("  %-*s : %s\n", keyWidth, key, value)
}

// printTable renders rows under header with columns sized to their content
func printTable(header []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))

	rules := make([]string, len(header))
	for i, h := range header {
		rules[i] = strings.Repeat("─", len(h))
	}
	fmt.Fprintln(w, strings.Join(rules, "\t"))

	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	_ = w.Flush()
}

// printAllocations prints an ASSET/WEIGHT table, skipping empty input
func printAllocations(allocs contracts.Allocations) {
	if len(allocs) == 0 {
		return
	}
	rows := make([][]string, 0, len(allocs))
	for _, a := range allocs {
		rows = append(rows, []string{a.AssetID, formatPct(a.Weight)})
	}
	printTable([]string{"ASSET", "WEIGHT"}, rows)
	fmt.Println()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
