package s2_signals

import (
	"fmt"
	"sort"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/logger"
)

// ScoreOptions controls the factor windows
type ScoreOptions struct {
	LookbackDays      int                // 후행 캘린더 포인트 수
	SharesOutstanding map[string]float64 // 선택: 시가총액 계산용
}

// Scorer orchestrates the factor calculators into a ScoreSet
// ⭐ SSOT: 팩터 점수 오케스트레이션은 여기서만
type Scorer struct {
	momentum   *MomentumCalculator
	marketCap  *MarketCapCalculator
	riskParity *RiskParityCalculator

	logger *logger.Logger
}

// NewScorer creates a scorer with the standard calculators
func NewScorer(log *logger.Logger) *Scorer {
	log = logger.OrNop(log).WithComponent("scorer")
	return &Scorer{
		momentum:   NewMomentumCalculator(log),
		marketCap:  NewMarketCapCalculator(),
		riskParity: NewRiskParityCalculator(),
		logger:     log,
	}
}

// Score computes momentum, market-cap and risk-parity scores at dateIdx for
// the candidate assets. Ineligible candidates are reported in
// ScoreSet.Excluded; fewer than 2 eligible assets is an
// *contracts.InsufficientUniverseError.
func (s *Scorer) Score(panel *contracts.Panel, dateIdx int, candidates []string, opts ScoreOptions) (*contracts.ScoreSet, error) {
	if panel == nil || dateIdx < 0 || dateIdx >= panel.Len() {
		return nil, fmt.Errorf("score: date index %d out of range", dateIdx)
	}
	if opts.LookbackDays < 1 {
		return nil, &contracts.ConfigurationError{Field: "signals.lookback_days", Message: "must be >= 1"}
	}

	date := panel.Dates[dateIdx]
	set := &contracts.ScoreSet{Date: date}

	ids := append([]string(nil), candidates...)
	sort.Strings(ids)

	start := windowBounds(dateIdx, opts.LookbackDays)
	windows := make([]*assetWindow, 0, len(ids))
	for _, id := range ids {
		series, ok := panel.Series[id]
		if !ok {
			set.Excluded = append(set.Excluded, contracts.DataQualityError{AssetID: id, Date: date, Reason: "no price history"})
			continue
		}
		if pt, _ := series.At(dateIdx); !pt.Available() {
			set.Excluded = append(set.Excluded, contracts.DataQualityError{AssetID: id, Date: date, Reason: "not available on date"})
			continue
		}
		w := extractWindow(series, start, dateIdx)
		if len(w.Closes) < 2 {
			set.Excluded = append(set.Excluded, contracts.DataQualityError{AssetID: id, Date: date, Reason: "fewer than 2 points in lookback window"})
			continue
		}
		windows = append(windows, w)
	}

	for _, dq := range set.Excluded {
		s.logger.WithFields(map[string]interface{}{
			"asset_id": dq.AssetID,
			"date":     date.Format("2006-01-02"),
			"reason":   dq.Reason,
		}).Warn("asset not scored")
	}

	if len(windows) < 2 {
		return set, &contracts.InsufficientUniverseError{Date: date, Eligible: len(windows)}
	}

	rawMom, mom := s.momentum.Calculate(windows)
	rawCap, capScore := s.marketCap.Calculate(windows, opts.SharesOutstanding)
	vol, rp, rpExcluded := s.riskParity.Calculate(windows)

	set.Scores = make([]contracts.FactorScore, 0, len(windows))
	for _, w := range windows {
		id := w.AssetID
		set.Scores = append(set.Scores, contracts.FactorScore{
			AssetID:            id,
			Date:               date,
			Momentum:           mom[id],
			MarketCap:          capScore[id],
			RiskParity:         rp[id],
			RiskParityExcluded: rpExcluded[id],
			RawMomentum:        rawMom[id],
			RawMarketCap:       rawCap[id],
			RawVolatility:      vol[id],
		})
	}

	s.logger.WithFields(map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"scored":   len(set.Scores),
		"excluded": len(set.Excluded),
	}).Debug("factor scores computed")

	return set, nil
}
