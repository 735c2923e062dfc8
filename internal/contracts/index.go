package contracts

import (
	"cmp"
	"slices"
	"time"
)

// IndexValue is the index level on a date (base 100 at inception)
type IndexValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// EventKind classifies run events
type EventKind string

const (
	EventExcluded           EventKind = "excluded"            // 데이터 품질로 제외
	EventAnomalyHold        EventKind = "anomaly_hold"        // 이상 수익률 → 직전 비중 유지
	EventRebalanced         EventKind = "rebalanced"          // 목표 비중 적용
	EventStaleAllocation    EventKind = "stale_allocation"    // 유니버스 부족 → 직전 배분 유지
	EventConstituentDropped EventKind = "constituent_dropped" // ffill 한도 초과 → 편출
	EventLargeMove          EventKind = "large_move"          // |R| > 50%
	EventInception          EventKind = "inception"
)

// Event is an audit log entry produced during a run
type Event struct {
	Date    time.Time `json:"date"`
	Kind    EventKind `json:"kind"`
	AssetID string    `json:"asset_id,omitempty"`
	Detail  string    `json:"detail"`
}

// SortedKeys returns map keys in ascending order
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
