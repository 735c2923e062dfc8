package scheduler

import (
	"time"

	"github.com/wonny/aegis-index/internal/strategyconfig"
)

// IntervalDays returns the whole-day interval implied by a frequency.
// Monthly is a plain 28-day count, not calendar-month aware.
func IntervalDays(freq strategyconfig.Frequency) (int, bool) {
	switch freq {
	case strategyconfig.FrequencyDaily:
		return 1, true
	case strategyconfig.FrequencyWeekly:
		return 7, true
	case strategyconfig.FrequencyMonthly:
		return 28, true
	default:
		return 0, false
	}
}

// ShouldRebalance decides whether fresh weights are applied at now.
// force always wins; a zero last means the index was never weighted.
// An unknown frequency never rebalances on its own.
// ⭐ SSOT: 리밸런싱 여부 판단은 여기서만 (부수효과 없음)
func ShouldRebalance(last time.Time, freq strategyconfig.Frequency, now time.Time, force bool) bool {
	if force {
		return true
	}
	if last.IsZero() {
		return true
	}

	interval, ok := IntervalDays(freq)
	if !ok {
		return false
	}
	return ElapsedDays(last, now) >= interval
}

// NextRebalance returns the instant a rebalance becomes due after last
func NextRebalance(last time.Time, freq strategyconfig.Frequency) (time.Time, bool) {
	interval, ok := IntervalDays(freq)
	if !ok || last.IsZero() {
		return time.Time{}, false
	}
	return last.UTC().Add(time.Duration(interval) * day), true
}

const day = 24 * time.Hour

// ElapsedDays counts whole 24h periods from last to now, truncated toward zero.
// 시간대가 달라도 실제 경과 시간 기준
func ElapsedDays(last, now time.Time) int {
	return int(now.Sub(last) / day)
}
