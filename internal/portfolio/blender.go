package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// ValidationTolerance is the allowed |Σw-1| for a valid allocation
const ValidationTolerance = 1e-6

// BlendInput carries everything the blender needs for one date
type BlendInput struct {
	Date        time.Time
	Scores      []contracts.FactorScore
	Weights     strategyconfig.Weights
	Constraints Constraints
	Previous    map[string]float64 // 직전 배분 (asset → weight)
	Held        []string           // 이상 수익률로 보유 유지할 자산
	LastPrices  map[string]float64 // 당일 종가 (없으면 가격 필터 미통과)
}

// BlendResult is the blended target allocation
type BlendResult struct {
	Allocations   contracts.Allocations `json:"allocations"`
	Raw           map[string]float64    `json:"raw"`
	Held          []string              `json:"held"`
	PriceFiltered []string              `json:"price_filtered"`
}

// Blender implements the multi-factor WeightBlender
// ⭐ SSOT: 목표 비중 산출 로직은 여기서만
type Blender struct {
	logger *logger.Logger
}

// NewBlender creates a new blender
func NewBlender(log *logger.Logger) *Blender {
	return &Blender{logger: logger.OrNop(log).WithComponent("blender")}
}

// Blend combines factor scores into target weights summing to 1.
// Held assets keep their previous weight; the rest of the budget is split
// by blended score after the price filter.
func (b *Blender) Blend(in BlendInput) (*BlendResult, error) {
	res := &BlendResult{Raw: make(map[string]float64)}

	// 1. 보유 유지 자산: 직전 비중 고정
	held := make(map[string]float64)
	heldSet := make(map[string]bool, len(in.Held))
	for _, id := range in.Held {
		heldSet[id] = true
		held[id] = in.Previous[id]
	}
	res.Held = contracts.SortedKeys(heldSet)

	heldSum := 0.0
	for _, id := range res.Held {
		heldSum += held[id]
	}
	budget := 1.0 - heldSum

	// 2. 블렌딩 점수 (가격 필터 적용)
	scores := append([]contracts.FactorScore(nil), in.Scores...)
	sort.Slice(scores, func(i, j int) bool { return scores[i].AssetID < scores[j].AssetID })

	rawSum := 0.0
	for _, s := range scores {
		if heldSet[s.AssetID] {
			continue
		}
		raw := in.Weights.Momentum*s.Momentum + in.Weights.MarketCap*s.MarketCap + in.Weights.RiskParity*s.RiskParity
		if math.IsNaN(raw) || raw < 0 {
			raw = 0
		}
		if price, ok := in.LastPrices[s.AssetID]; !ok || price < in.Constraints.MinPriceThreshold {
			res.PriceFiltered = append(res.PriceFiltered, s.AssetID)
			raw = 0
		}
		res.Raw[s.AssetID] = raw
		rawSum += raw
	}

	weights := make(map[string]float64, len(res.Raw)+len(held))

	switch {
	case budget <= 1e-12:
		// 전부 보유 유지: 직전 비중을 1로 재정규화
		if heldSum <= 0 {
			return nil, &contracts.InsufficientUniverseError{Date: in.Date, Eligible: 0}
		}
		for id, w := range held {
			weights[id] = w / heldSum
		}
	case rawSum <= 0:
		return nil, &contracts.InsufficientUniverseError{Date: in.Date, Eligible: 0}
	default:
		for id, w := range held {
			weights[id] = w
		}
		// 3. 예산 비례 배분
		for id, raw := range res.Raw {
			if raw > 0 {
				weights[id] = raw / rawSum * budget
			}
		}
		// 4. 부동소수 잔차 재분배 (held 제외)
		redistributeResidual(weights, heldSet)
	}

	res.Allocations = make(contracts.Allocations, 0, len(weights))
	for _, id := range contracts.SortedKeys(weights) {
		if weights[id] <= 0 {
			continue
		}
		res.Allocations = append(res.Allocations, contracts.Allocation{Date: in.Date, AssetID: id, Weight: weights[id]})
	}

	if err := Validate(res.Allocations); err != nil {
		return nil, fmt.Errorf("blend %s: %w", in.Date.Format("2006-01-02"), err)
	}

	b.logger.WithFields(map[string]interface{}{
		"date":           in.Date.Format("2006-01-02"),
		"positions":      len(res.Allocations),
		"held":           len(res.Held),
		"price_filtered": len(res.PriceFiltered),
	}).Debug("weights blended")

	return res, nil
}

// redistributeResidual spreads 1-Σw proportionally over the non-held weights
func redistributeResidual(weights map[string]float64, held map[string]bool) {
	ids := contracts.SortedKeys(weights)
	total := 0.0
	free := 0.0
	for _, id := range ids {
		total += weights[id]
		if !held[id] {
			free += weights[id]
		}
	}
	residual := 1.0 - total
	if residual == 0 || free <= 0 {
		return
	}
	for _, id := range ids {
		if held[id] {
			continue
		}
		weights[id] += residual * weights[id] / free
	}
}

// Validate checks non-negative weights summing to 1 within tolerance
func Validate(allocs contracts.Allocations) error {
	if len(allocs) == 0 {
		return fmt.Errorf("allocation is empty")
	}
	for _, a := range allocs {
		if a.Weight < 0 || math.IsNaN(a.Weight) {
			return fmt.Errorf("asset %s has invalid weight %v", a.AssetID, a.Weight)
		}
	}
	if sum := allocs.TotalWeight(); math.Abs(sum-1.0) >= ValidationTolerance {
		return fmt.Errorf("weights sum to %.9f, want 1", sum)
	}
	return nil
}
