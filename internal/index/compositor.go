package index

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/pkg/logger"
)

// ErrNoConstituents is returned when every constituent has been dropped and
// no new target is supplied
var ErrNoConstituents = errors.New("index has no surviving constituents")

// weightTolerance matches the blender's validation tolerance
const weightTolerance = 1e-6

// State is the compositor lifecycle state
type State int

const (
	StatePending     State = iota // New 이후, Start 이전
	StateInitialized              // 인셉션
	StateRebalanced
	StateDrifted
	StateTerminal
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInitialized:
		return "initialized"
	case StateRebalanced:
		return "rebalanced"
	case StateDrifted:
		return "drifted"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Mark is an asset's closing mark on a step date
type Mark struct {
	Close    float64
	Observed bool // false면 당일 가격 없음 (ffill 포함)
}

// Options configures a Compositor
type Options struct {
	MaxForwardFillDays int
	BaseValue          float64
	MoveSanityBound    float64 // |R| 초과 시 large_move 이벤트
}

// DefaultOptions returns base 100 with a ±50% move bound
func DefaultOptions() Options {
	return Options{
		MaxForwardFillDays: 5,
		BaseValue:          100,
		MoveSanityBound:    0.5,
	}
}

// constituent is the per-asset drift state
type constituent struct {
	weight     float64
	mark       float64 // 마지막 관측 또는 보정 종가
	lastReturn float64
	missing    int // 연속 결측 일수
}

// Compositor turns target weights and daily marks into an index series
// ⭐ SSOT: 인덱스 값/비중 드리프트 계산은 여기서만
type Compositor struct {
	opts  Options
	state State

	date  time.Time
	value float64
	held  map[string]*constituent

	values      []contracts.IndexValue
	allocations []contracts.Allocation
	events      []contracts.Event

	logger *logger.Logger
}

// New creates a compositor in the pending state
func New(opts Options, log *logger.Logger) *Compositor {
	if opts.BaseValue <= 0 {
		opts.BaseValue = 100
	}
	if opts.MoveSanityBound <= 0 {
		opts.MoveSanityBound = 0.5
	}
	return &Compositor{
		opts:   opts,
		state:  StatePending,
		held:   make(map[string]*constituent),
		logger: logger.OrNop(log).WithComponent("compositor"),
	}
}

// State returns the current lifecycle state
func (c *Compositor) State() State {
	return c.state
}

// Value returns the latest index value
func (c *Compositor) Value() float64 {
	return c.value
}

// LastDate returns the latest step date
func (c *Compositor) LastDate() time.Time {
	return c.date
}

// Weights returns the current (drifted) weights
func (c *Compositor) Weights() map[string]float64 {
	out := make(map[string]float64, len(c.held))
	for id, h := range c.held {
		out[id] = h.weight
	}
	return out
}

// Start sets the inception: value = BaseValue, allocation = weights.
// marks seeds each constituent's reference close.
func (c *Compositor) Start(date time.Time, weights contracts.Allocations, marks map[string]Mark) error {
	switch c.state {
	case StatePending:
	case StateTerminal:
		return contracts.ErrTerminal
	default:
		return fmt.Errorf("start %s: compositor already started", date.Format("2006-01-02"))
	}

	held, err := snap(weights, nil, marks)
	if err != nil {
		return fmt.Errorf("start %s: %w", date.Format("2006-01-02"), err)
	}

	c.date = date
	c.value = c.opts.BaseValue
	c.held = held
	c.state = StateInitialized
	c.record(date)
	c.events = append(c.events, contracts.Event{
		Date:   date,
		Kind:   contracts.EventInception,
		Detail: fmt.Sprintf("index started at %.2f with %d constituents", c.value, len(held)),
	})

	c.logger.WithFields(map[string]interface{}{
		"date":         date.Format("2006-01-02"),
		"constituents": len(held),
	}).Info("index inception")

	return nil
}

// Step advances the index to date. Values move with the drifted weights;
// a non-nil target snaps weights after the value update (Rebalanced),
// otherwise the index drifts. The step is all-or-nothing.
func (c *Compositor) Step(date time.Time, marks map[string]Mark, target contracts.Allocations) (contracts.IndexValue, error) {
	switch c.state {
	case StatePending:
		return contracts.IndexValue{}, contracts.ErrNotStarted
	case StateTerminal:
		return contracts.IndexValue{}, contracts.ErrTerminal
	}
	if !date.After(c.date) {
		return contracts.IndexValue{}, fmt.Errorf("step %s after %s: %w",
			date.Format("2006-01-02"), c.date.Format("2006-01-02"), contracts.ErrNonIncreasingDate)
	}

	// 작업 사본에서 계산 후 성공 시에만 커밋
	next := make(map[string]*constituent, len(c.held))
	returns := make(map[string]float64, len(c.held))
	var dropped []string
	var events []contracts.Event

	for _, id := range contracts.SortedKeys(c.held) {
		h := *c.held[id]
		m, ok := marks[id]

		if ok && m.Observed && m.Close > 0 && !math.IsInf(m.Close, 0) {
			r := 0.0
			if h.mark > 0 {
				r = m.Close/h.mark - 1
			}
			h.mark = m.Close
			h.lastReturn = r
			h.missing = 0
			returns[id] = r
			next[id] = &h
			continue
		}

		h.missing++
		if h.missing > c.opts.MaxForwardFillDays {
			dropped = append(dropped, id)
			events = append(events, contracts.Event{
				Date:    date,
				Kind:    contracts.EventConstituentDropped,
				AssetID: id,
				Detail:  fmt.Sprintf("missing %d consecutive days (limit %d), weight %.6f redistributed", h.missing, c.opts.MaxForwardFillDays, h.weight),
			})
			continue
		}

		// 첫 결측일: 전일 수익률 이월, 이후 결측일: 0
		r := 0.0
		if h.missing == 1 {
			r = h.lastReturn
		}
		h.mark *= 1 + r
		returns[id] = r
		next[id] = &h
	}

	// 편출 비중을 생존 종목에 비례 재분배
	ids := contracts.SortedKeys(next)
	if len(dropped) > 0 {
		survivors := 0.0
		for _, id := range ids {
			survivors += next[id].weight
		}
		if survivors > 0 {
			for _, h := range next {
				h.weight /= survivors
			}
		}
	}

	portfolioReturn := 0.0
	growth := 0.0
	// 합산 순서 고정 (결정성)
	for _, id := range ids {
		portfolioReturn += next[id].weight * returns[id]
		growth += next[id].weight * (1 + returns[id])
	}

	if len(next) == 0 && target == nil {
		return contracts.IndexValue{}, fmt.Errorf("step %s: %w", date.Format("2006-01-02"), ErrNoConstituents)
	}

	value := c.value * (1 + portfolioReturn)
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return contracts.IndexValue{}, fmt.Errorf("step %s: value %.6f: %w", date.Format("2006-01-02"), value, contracts.ErrNonPositiveValue)
	}

	// 드리프트
	if growth > 0 {
		for id, h := range next {
			h.weight = h.weight * (1 + returns[id]) / growth
		}
	}

	state := StateDrifted
	if target != nil {
		snapped, err := snap(target, next, marks)
		if err != nil {
			return contracts.IndexValue{}, fmt.Errorf("step %s: %w", date.Format("2006-01-02"), err)
		}
		next = snapped
		state = StateRebalanced
	}

	if math.Abs(portfolioReturn) > c.opts.MoveSanityBound && len(dropped) == 0 {
		events = append(events, contracts.Event{
			Date:   date,
			Kind:   contracts.EventLargeMove,
			Detail: fmt.Sprintf("portfolio return %.4f exceeds sanity bound %.2f", portfolioReturn, c.opts.MoveSanityBound),
		})
		c.logger.WithFields(map[string]interface{}{
			"date":   date.Format("2006-01-02"),
			"return": portfolioReturn,
		}).Warn("large index move")
	}
	for _, id := range dropped {
		c.logger.WithFields(map[string]interface{}{
			"date":     date.Format("2006-01-02"),
			"asset_id": id,
		}).Warn("constituent dropped")
	}

	// 커밋
	c.date = date
	c.value = value
	c.held = next
	c.state = state
	c.events = append(c.events, events...)
	c.record(date)

	return contracts.IndexValue{Date: date, Value: value}, nil
}

// Finish moves the compositor to the terminal state
func (c *Compositor) Finish() error {
	if c.state == StateTerminal {
		return contracts.ErrTerminal
	}
	c.state = StateTerminal
	return nil
}

// Values returns a copy of the index series
func (c *Compositor) Values() []contracts.IndexValue {
	return append([]contracts.IndexValue(nil), c.values...)
}

// Allocations returns a copy of the realized allocation history
func (c *Compositor) Allocations() contracts.Allocations {
	return append(contracts.Allocations(nil), c.allocations...)
}

// Events returns a copy of the compositor events
func (c *Compositor) Events() []contracts.Event {
	return append([]contracts.Event(nil), c.events...)
}

// record appends the current value and weights to the history
func (c *Compositor) record(date time.Time) {
	c.values = append(c.values, contracts.IndexValue{Date: date, Value: c.value})
	for _, id := range contracts.SortedKeys(c.held) {
		if w := c.held[id].weight; w > 0 {
			c.allocations = append(c.allocations, contracts.Allocation{Date: date, AssetID: id, Weight: w})
		}
	}
}

// snap builds the constituent set for new target weights. Assets already
// held keep their mark and missing-day state.
func snap(target contracts.Allocations, prev map[string]*constituent, marks map[string]Mark) (map[string]*constituent, error) {
	if len(target) == 0 {
		return nil, fmt.Errorf("target allocation is empty")
	}

	total := 0.0
	out := make(map[string]*constituent, len(target))
	for _, a := range target {
		if a.Weight < 0 || math.IsNaN(a.Weight) {
			return nil, fmt.Errorf("asset %s has invalid weight %v", a.AssetID, a.Weight)
		}
		total += a.Weight
		if a.Weight == 0 {
			continue
		}

		h := &constituent{weight: a.Weight}
		if p, ok := prev[a.AssetID]; ok {
			h.mark = p.mark
			h.lastReturn = p.lastReturn
			h.missing = p.missing
		} else if m, ok := marks[a.AssetID]; ok && m.Close > 0 {
			h.mark = m.Close
		}
		out[a.AssetID] = h
	}

	if math.Abs(total-1) >= weightTolerance {
		return nil, fmt.Errorf("target weights sum to %.9f, want 1", total)
	}
	return out, nil
}
