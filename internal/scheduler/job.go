package scheduler

import (
	"context"
	"time"
)

// Job is a unit of periodic work such as the nightly index refresh.
// Schedule uses the six-field cron syntax (seconds first) or a descriptor like "@daily".
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// JobResult records one execution, including its retries
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"` // 이전 실행이 진행 중
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
}

// JobStats summarises the retained history of one job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// maxHistory bounds the results kept per job
const maxHistory = 100

// JobHistory keeps the most recent results of a job, oldest first.
// Callers synchronise access (the scheduler holds its lock).
type JobHistory struct {
	Results []JobResult
}

// AddResult appends r and drops the oldest entries beyond maxHistory
func (h *JobHistory) AddResult(r JobResult) {
	h.Results = append(h.Results, r)
	if over := len(h.Results) - maxHistory; over > 0 {
		h.Results = append(h.Results[:0:0], h.Results[over:]...)
	}
}

// GetLatestResults returns a copy of the last n results
func (h *JobHistory) GetLatestResults(n int) []JobResult {
	n = min(n, len(h.Results))
	if n <= 0 {
		return []JobResult{}
	}
	return append([]JobResult(nil), h.Results[len(h.Results)-n:]...)
}

// GetFailedResults returns the failed results in order
func (h *JobHistory) GetFailedResults() []JobResult {
	failed := []JobResult{}
	for _, r := range h.Results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}

// GetSuccessRate returns the share of successful runs, 0 when empty
func (h *JobHistory) GetSuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	return float64(h.successes()) / float64(len(h.Results))
}

func (h *JobHistory) successes() int {
	n := 0
	for _, r := range h.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Stats folds the history into a JobStats for the given job
func (h *JobHistory) Stats(name, schedule string) JobStats {
	ok := h.successes()
	st := JobStats{
		JobName:      name,
		Schedule:     schedule,
		TotalRuns:    len(h.Results),
		SuccessCount: ok,
		FailureCount: len(h.Results) - ok,
		SuccessRate:  h.GetSuccessRate(),
	}

	// 최근 실행부터 역순 탐색
	for i := len(h.Results) - 1; i >= 0; i-- {
		at := h.Results[i].StartTime
		if st.LastRun == nil {
			st.LastRun = &at
		}
		if h.Results[i].Success && st.LastSuccess == nil {
			st.LastSuccess = &at
		} else if !h.Results[i].Success && st.LastFailure == nil {
			st.LastFailure = &at
		}
		if st.LastSuccess != nil && st.LastFailure != nil {
			break
		}
	}
	return st
}
