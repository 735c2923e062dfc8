package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis-index/internal/contracts"
	"github.com/wonny/aegis-index/internal/index"
	"github.com/wonny/aegis-index/internal/portfolio"
	"github.com/wonny/aegis-index/internal/risk"
	"github.com/wonny/aegis-index/internal/s0_data"
	"github.com/wonny/aegis-index/internal/s0_data/quality"
	"github.com/wonny/aegis-index/internal/s2_signals"
	"github.com/wonny/aegis-index/internal/scheduler"
	"github.com/wonny/aegis-index/internal/strategyconfig"
	"github.com/wonny/aegis-index/pkg/logger"
)

// Input is an immutable snapshot for one run
type Input struct {
	Prices            map[string][]contracts.PricePoint
	Benchmark         []contracts.BenchmarkPoint
	SharesOutstanding map[string]float64
	Universe          []string // 비어 있으면 가격 데이터의 모든 자산
	Config            *strategyconfig.Config
	From              time.Time
	To                time.Time
}

// Engine drives preparer → scorer → blender → compositor → risk over a
// price snapshot. It holds no run state and performs no I/O.
// ⭐ SSOT: 인덱스 산출 파이프라인 실행은 여기서만
type Engine struct {
	preparer   *s0_data.Preparer
	scorer     *s2_signals.Scorer
	blender    *portfolio.Blender
	calculator *risk.Calculator
	gate       *quality.Gate
	recorder   Recorder
	logger     *logger.Logger
}

// NewEngine creates an engine with the standard stages
func NewEngine(log *logger.Logger) *Engine {
	log = logger.OrNop(log)
	return &Engine{
		preparer:   s0_data.NewPreparer(log),
		scorer:     s2_signals.NewScorer(log),
		blender:    portfolio.NewBlender(log),
		calculator: risk.NewCalculator(log),
		gate:       quality.NewGate(quality.DefaultConfig()),
		recorder:   nopRecorder{},
		logger:     log.WithComponent("engine"),
	}
}

// WithRecorder sets the telemetry sink
func (e *Engine) WithRecorder(r Recorder) *Engine {
	if r != nil {
		e.recorder = r
	}
	return e
}

// Run computes the index series, allocations and risk metrics for the
// snapshot. Configuration problems abort before any work; universe
// shortfalls keep the prior allocation and are retried on the next date.
// Cancelling ctx discards the run.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()
	res, err := e.run(ctx, in)

	status := StatusSuccess
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = StatusCancelled
	case err != nil:
		status = StatusFailed
	}
	e.recorder.ObserveRun(status, time.Since(started))

	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(started)
	return res, nil
}

func (e *Engine) run(ctx context.Context, in Input) (*Result, error) {
	// 1. 설정 검증 (계산 전)
	if in.Config == nil {
		return nil, &contracts.ConfigurationError{Field: "config", Message: "is required"}
	}
	cfg := in.Config.Clone()
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}

	// 2. 패널 준비
	panel, err := e.preparer.Prepare(in.Prices, prepareOptions(cfg, in.From, in.To))
	if err != nil {
		return nil, fmt.Errorf("prepare prices: %w", err)
	}

	res := &Result{
		RunID:      uuid.NewString(),
		ConfigHash: hash,
		StrategyID: cfg.Meta.StrategyID,
		Excluded:   append([]contracts.DataQualityError(nil), panel.Excluded...),
	}
	for _, dq := range panel.Excluded {
		res.Events = append(res.Events, contracts.Event{
			Date: panel.Dates[0], Kind: contracts.EventExcluded, AssetID: dq.AssetID, Detail: dq.Reason,
		})
		e.recorder.IncExclusion("data_quality")
	}

	universe := universeOf(in)
	compositor := index.New(index.Options{
		MaxForwardFillDays: cfg.Data.MaxForwardFillDays,
		BaseValue:          100,
		MoveSanityBound:    0.5,
	}, e.logger)

	e.logger.WithFields(map[string]interface{}{
		"run_id":      res.RunID,
		"strategy_id": res.StrategyID,
		"assets":      len(panel.Series),
		"dates":       panel.Len(),
		"frequency":   string(cfg.Rebalance.Frequency),
	}).Info("Starting index run")

	var lastRebalance time.Time
	var lastStale error

	// 3. 날짜 순회
	for i, date := range panel.Dates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled at %s: %w", date.Format("2006-01-02"), err)
		}

		marks := marksAt(panel, i)

		if compositor.State() == index.StatePending {
			w, events, err := e.weigh(panel, i, universe, cfg, in.SharesOutstanding, nil)
			res.Events = append(res.Events, events...)
			if err != nil {
				if !contracts.IsStale(err) {
					return nil, err
				}
				lastStale = err
				res.Events = append(res.Events, staleEvent(date, err, "inception deferred"))
				e.recorder.IncRebalance(OutcomeStale)
				continue
			}
			if err := compositor.Start(date, w.Allocations, marks); err != nil {
				return nil, fmt.Errorf("index inception: %w", err)
			}
			lastRebalance = date
			res.Rebalances = append(res.Rebalances, date)
			res.Events = append(res.Events, rebalancedEvent(date, w.Allocations))
			e.recorder.IncRebalance(OutcomeRebalanced)
			continue
		}

		var target contracts.Allocations
		if scheduler.ShouldRebalance(lastRebalance, cfg.Rebalance.Frequency, date, false) {
			w, events, err := e.weigh(panel, i, universe, cfg, in.SharesOutstanding, compositor.Weights())
			res.Events = append(res.Events, events...)
			switch {
			case err == nil:
				target = w.Allocations
				lastRebalance = date
				res.Rebalances = append(res.Rebalances, date)
				res.Events = append(res.Events, rebalancedEvent(date, target))
				e.recorder.IncRebalance(OutcomeRebalanced)
			case contracts.IsStale(err):
				// 직전 배분 유지, 다음 날짜에 재시도
				lastStale = err
				res.Events = append(res.Events, staleEvent(date, err, "prior allocation retained"))
				e.recorder.IncRebalance(OutcomeStale)
			default:
				return nil, err
			}
		}

		if _, err := compositor.Step(date, marks, target); err != nil {
			return nil, fmt.Errorf("index step: %w", err)
		}
	}

	if compositor.State() == index.StatePending {
		if lastStale == nil {
			lastStale = &contracts.InsufficientUniverseError{Date: panel.Dates[panel.Len()-1]}
		}
		return nil, fmt.Errorf("no date with an investable universe: %w", lastStale)
	}
	if err := compositor.Finish(); err != nil {
		return nil, err
	}

	res.IndexValues = compositor.Values()
	res.Allocations = compositor.Allocations()
	res.Events = mergeEvents(res.Events, compositor.Events())
	res.StartDate = res.IndexValues[0].Date
	res.EndDate = res.IndexValues[len(res.IndexValues)-1].Date
	res.Quality = e.gate.Check(panel, panel.Len()-1)

	// 4. 리스크 지표
	riskRes, err := e.calculator.Calculate(res.IndexValues, in.Benchmark, cfg.Risk.Window)
	if err != nil {
		return nil, fmt.Errorf("risk metrics: %w", err)
	}
	res.Risk = &riskRes.Metric
	res.RiskWarnings = riskRes.WarningMessages()

	res.RiskSeries, err = e.calculator.Rolling(res.IndexValues, in.Benchmark, cfg.Risk.Window)
	if err != nil {
		return nil, fmt.Errorf("rolling risk metrics: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"run_id":      res.RunID,
		"start":       res.StartDate.Format("2006-01-02"),
		"end":         res.EndDate.Format("2006-01-02"),
		"rebalances":  len(res.Rebalances),
		"final_value": fmt.Sprintf("%.4f", res.FinalValue()),
		"max_dd":      fmt.Sprintf("%.2f%%", res.Risk.MaxDrawdown*100),
	}).Info("Index run completed")

	return res, nil
}

// weigh runs screen → score → blend at dateIdx. previous is nil at inception.
func (e *Engine) weigh(panel *contracts.Panel, dateIdx int, universe []string, cfg *strategyconfig.Config, shares map[string]float64, previous map[string]float64) (*portfolio.BlendResult, []contracts.Event, error) {
	date := panel.Dates[dateIdx]
	constraints := portfolio.ConstraintsFromConfig(cfg)

	var events []contracts.Event

	screen := portfolio.Screen(panel, dateIdx, universe, constraints)
	for _, id := range screen.Blacklisted {
		e.recorder.IncExclusion("blacklist")
		events = append(events, contracts.Event{
			Date: date, Kind: contracts.EventExcluded, AssetID: id, Detail: screen.Reasons[id],
		})
	}
	held := make([]string, 0, len(screen.Held))
	for _, id := range screen.Held {
		e.recorder.IncExclusion("anomaly")
		// 직전 비중이 없는 자산은 이번 리밸런싱에서만 제외
		if _, ok := previous[id]; ok {
			held = append(held, id)
		}
		events = append(events, contracts.Event{
			Date: date, Kind: contracts.EventAnomalyHold, AssetID: id, Detail: screen.Reasons[id],
		})
	}

	set, err := e.scorer.Score(panel, dateIdx, screen.Eligible, s2_signals.ScoreOptions{
		LookbackDays:      cfg.Signals.LookbackDays,
		SharesOutstanding: shares,
	})
	if set != nil {
		for _, dq := range set.Excluded {
			e.recorder.IncExclusion("data_quality")
			events = append(events, contracts.Event{
				Date: date, Kind: contracts.EventExcluded, AssetID: dq.AssetID, Detail: dq.Reason,
			})
		}
	}
	if err != nil {
		return nil, events, err
	}

	w, err := e.blender.Blend(portfolio.BlendInput{
		Date:        date,
		Scores:      set.Scores,
		Weights:     cfg.Weights,
		Constraints: constraints,
		Previous:    previous,
		Held:        held,
		LastPrices:  lastPrices(panel, dateIdx),
	})
	if err != nil {
		return nil, events, err
	}
	for range w.PriceFiltered {
		e.recorder.IncExclusion("price_filter")
	}

	return w, events, nil
}

// prepareOptions maps the data section onto preparer options
func prepareOptions(cfg *strategyconfig.Config, from, to time.Time) s0_data.PrepareOptions {
	return s0_data.PrepareOptions{
		From:                from,
		To:                  to,
		MaxForwardFillDays:  cfg.Data.MaxForwardFillDays,
		OutlierStdThreshold: cfg.Data.OutlierStdThreshold,
		OutlierWindow:       cfg.Data.OutlierWindow,
	}
}

// universeOf returns the sorted candidate universe
func universeOf(in Input) []string {
	if len(in.Universe) > 0 {
		out := append([]string(nil), in.Universe...)
		sort.Strings(out)
		return out
	}
	return contracts.SortedKeys(in.Prices)
}

// marksAt collects each available asset's close on dateIdx
func marksAt(panel *contracts.Panel, dateIdx int) map[string]index.Mark {
	marks := make(map[string]index.Mark, len(panel.Series))
	for id, series := range panel.Series {
		pt, ok := series.At(dateIdx)
		if !ok || !pt.Available() {
			continue
		}
		marks[id] = index.Mark{Close: pt.Close, Observed: pt.Status == contracts.StatusObserved}
	}
	return marks
}

// lastPrices returns available closes on dateIdx
func lastPrices(panel *contracts.Panel, dateIdx int) map[string]float64 {
	prices := make(map[string]float64, len(panel.Series))
	for id, series := range panel.Series {
		if pt, ok := series.At(dateIdx); ok && pt.Available() {
			prices[id] = pt.Close
		}
	}
	return prices
}

func staleEvent(date time.Time, err error, action string) contracts.Event {
	return contracts.Event{
		Date:   date,
		Kind:   contracts.EventStaleAllocation,
		Detail: fmt.Sprintf("%s: %v", action, err),
	}
}

func rebalancedEvent(date time.Time, allocs contracts.Allocations) contracts.Event {
	return contracts.Event{
		Date:   date,
		Kind:   contracts.EventRebalanced,
		Detail: fmt.Sprintf("%d constituents", len(allocs)),
	}
}

// mergeEvents interleaves engine and compositor events by date (stable)
func mergeEvents(a, b []contracts.Event) []contracts.Event {
	out := make([]contracts.Event, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
