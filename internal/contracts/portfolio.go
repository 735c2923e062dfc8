package contracts

import (
	"math"
	"sort"
	"time"
)

// Allocation is one asset's weight on a date
// ⭐ SSOT: Blender/Compositor 비중 레코드 (0.0 ~ 1.0, 날짜별 합계 1)
type Allocation struct {
	Date    time.Time `json:"date"`
	AssetID string    `json:"asset_id"`
	Weight  float64   `json:"weight"`
}

// Allocations is a set of weights for a single date
type Allocations []Allocation

// TotalWeight returns the sum of all weights
func (a Allocations) TotalWeight() float64 {
	total := 0.0
	for _, alloc := range a {
		total += alloc.Weight
	}
	return total
}

// Get finds an allocation by asset id
func (a Allocations) Get(assetID string) (Allocation, bool) {
	for _, alloc := range a {
		if alloc.AssetID == assetID {
			return alloc, true
		}
	}
	return Allocation{}, false
}

// WeightMap returns asset id → weight
func (a Allocations) WeightMap() map[string]float64 {
	m := make(map[string]float64, len(a))
	for _, alloc := range a {
		m[alloc.AssetID] = alloc.Weight
	}
	return m
}

// Sorted returns a copy ordered by asset id
func (a Allocations) Sorted() Allocations {
	out := make(Allocations, len(a))
	copy(out, a)
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// WithDate returns a copy with every row stamped to date
func (a Allocations) WithDate(date time.Time) Allocations {
	out := make(Allocations, len(a))
	for i, alloc := range a {
		alloc.Date = date
		out[i] = alloc
	}
	return out
}

// IsFullyInvested reports whether weights sum to 1 within tol
func (a Allocations) IsFullyInvested(tol float64) bool {
	return math.Abs(a.TotalWeight()-1.0) < tol
}

// AllocationsFromMap builds sorted allocations from a weight map
func AllocationsFromMap(date time.Time, weights map[string]float64) Allocations {
	out := make(Allocations, 0, len(weights))
	for _, id := range SortedKeys(weights) {
		out = append(out, Allocation{Date: date, AssetID: id, Weight: weights[id]})
	}
	return out
}
