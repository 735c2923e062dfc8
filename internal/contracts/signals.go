package contracts

import "time"

// FactorScore holds the per-asset factor scores at a rebalance date
// ⭐ SSOT: S2 → Portfolio 팩터 점수 전달
// Momentum is a rank in [0,1], MarketCap and RiskParity are normalised shares
type FactorScore struct {
	AssetID            string    `json:"asset_id"`
	Date               time.Time `json:"date"`
	Momentum           float64   `json:"momentum"`
	MarketCap          float64   `json:"market_cap"`
	RiskParity         float64   `json:"risk_parity"`
	RiskParityExcluded bool      `json:"risk_parity_excluded"` // 변동성 0 또는 미정의

	// 원본 값 (디버깅/리포트용)
	RawMomentum   float64 `json:"raw_momentum"`
	RawMarketCap  float64 `json:"raw_market_cap"`
	RawVolatility float64 `json:"raw_volatility"`
}

// ScoreSet is the scorer output for one date
type ScoreSet struct {
	Date     time.Time          `json:"date"`
	Scores   []FactorScore      `json:"scores"` // asset_id 오름차순
	Excluded []DataQualityError `json:"excluded,omitempty"`
}

// Get finds a score by asset id
func (s *ScoreSet) Get(assetID string) (*FactorScore, bool) {
	for i := range s.Scores {
		if s.Scores[i].AssetID == assetID {
			return &s.Scores[i], true
		}
	}
	return nil, false
}

// Count returns the number of scored assets
func (s *ScoreSet) Count() int {
	return len(s.Scores)
}
