package backtest

import "time"

// Recorder receives run telemetry
type Recorder interface {
	ObserveRun(status string, d time.Duration)
	IncRebalance(outcome string)
	IncExclusion(reason string)
}

// Run/rebalance outcome labels
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	OutcomeRebalanced = "rebalanced"
	OutcomeStale      = "stale"
	OutcomeNotDue     = "not_due"
)

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, time.Duration) {}
func (nopRecorder) IncRebalance(string)              {}
func (nopRecorder) IncExclusion(string)              {}
