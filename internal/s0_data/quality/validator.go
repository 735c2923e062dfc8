package quality

import "github.com/wonny/aegis-index/internal/contracts"

// Gate summarises panel coverage into a DataQualitySnapshot
type Gate struct {
	config Config
}

// Config holds quality gate thresholds
type Config struct {
	MinAvailableCoverage float64 `yaml:"min_available_coverage"` // 0.8: 관측+ffill 비율
	MinObservedCoverage  float64 `yaml:"min_observed_coverage"`  // 0.6: 실제 관측 비율
	MaxOutlierRate       float64 `yaml:"max_outlier_rate"`       // 0.05
}

// DefaultConfig returns the standard thresholds
func DefaultConfig() Config {
	return Config{
		MinAvailableCoverage: 0.8,
		MinObservedCoverage:  0.6,
		MaxOutlierRate:       0.05,
	}
}

// NewGate creates a new Gate instance
func NewGate(config Config) *Gate {
	return &Gate{config: config}
}

// Check computes the snapshot for the panel as of dateIdx
// ⭐ SSOT: S0 품질 검증 (패널 기반, I/O 없음)
func (g *Gate) Check(panel *contracts.Panel, dateIdx int) *contracts.DataQualitySnapshot {
	snapshot := &contracts.DataQualitySnapshot{
		Coverage: make(map[string]float64),
	}
	if panel == nil || dateIdx < 0 || dateIdx >= panel.Len() {
		return snapshot
	}
	snapshot.Date = panel.Dates[dateIdx]

	// 1. 전체 자산 수 (제외 자산 포함)
	snapshot.TotalAssets = len(panel.Series) + len(panel.Excluded)
	snapshot.ExcludedCount = len(panel.Excluded)

	// 2. 커버리지 체크
	snapshot.Coverage = g.checkCoverage(panel, dateIdx)
	for _, id := range panel.AssetIDs() {
		if pt, ok := panel.Series[id].At(dateIdx); ok && pt.Available() {
			snapshot.ValidAssets++
		}
		for _, pt := range panel.Series[id].Points[:dateIdx+1] {
			if pt.Outlier {
				snapshot.OutlierCount++
			}
		}
	}

	// 3. 품질 점수 계산
	snapshot.QualityScore = g.calculateScore(snapshot.Coverage)
	snapshot.Passed = snapshot.Coverage["available"] >= g.config.MinAvailableCoverage &&
		snapshot.Coverage["observed"] >= g.config.MinObservedCoverage &&
		snapshot.Coverage["outlier"] <= g.config.MaxOutlierRate

	return snapshot
}

// checkCoverage calculates coverage ratios over cells up to dateIdx
func (g *Gate) checkCoverage(panel *contracts.Panel, dateIdx int) map[string]float64 {
	coverage := make(map[string]float64)

	total := len(panel.Series) + len(panel.Excluded)
	if total == 0 {
		return coverage
	}

	// 당일 가용 비율
	coverage["available"] = float64(len(panel.AvailableAt(dateIdx))) / float64(total)

	var cells, observed, filled, returns, outliers int
	for _, series := range panel.Series {
		for _, pt := range series.Points[:dateIdx+1] {
			cells++
			switch pt.Status {
			case contracts.StatusObserved:
				observed++
			case contracts.StatusFilled:
				filled++
			}
			if pt.HasReturn {
				returns++
				if pt.Outlier {
					outliers++
				}
			}
		}
	}
	// 제외 자산은 모든 칸이 결측
	cells += len(panel.Excluded) * (dateIdx + 1)

	coverage["observed"] = float64(observed) / float64(cells)
	coverage["filled"] = float64(filled) / float64(cells)
	if returns > 0 {
		coverage["outlier"] = float64(outliers) / float64(returns)
	} else {
		coverage["outlier"] = 0
	}

	return coverage
}

// calculateScore calculates overall quality score using weighted average
func (g *Gate) calculateScore(coverage map[string]float64) float64 {
	// 가중치 (합계 = 1.0)
	score := coverage["available"]*0.5 + coverage["observed"]*0.4 + (1-coverage["outlier"])*0.1
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
