package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/aegis-index/pkg/logger"
)

// Options configures retries and timeouts
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	JobTimeout time.Duration         // 0이면 제한 없음
	OnResult   func(result JobResult) // 선택: 메트릭 등 결과 훅
}

// DefaultOptions returns the standard retry policy
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		RetryDelay: time.Minute,
		JobTimeout: 10 * time.Minute,
	}
}

// Scheduler decides when jobs run; what they compute stays in the jobs.
// A job never overlaps itself, so two refreshes cannot race on the index timeline.
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Logger
	opts Options

	mu      sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	running map[string]bool

	// Stop 시 실행 중인 작업 취소
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler using six-field (seconds first) cron specs
func New(log *logger.Logger, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		log:     logger.OrNop(log).WithComponent("scheduler"),
		opts:    opts,
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		history: make(map[string]*JobHistory),
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers job under its name; names must be unique
func (s *Scheduler) AddJob(job Job) error {
	name := job.Name()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddFunc(job.Schedule(), func() { s.runJob(job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.entries[name] = id
	s.history[name] = &JobHistory{}

	s.log.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")
	return nil
}

// RemoveJob unschedules a job and drops its history
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	s.cron.Remove(id)
	delete(s.jobs, name)
	delete(s.entries, name)
	delete(s.history, name)

	s.log.WithField("job", name).Info("Job removed from scheduler")
	return nil
}

// Start begins firing scheduled jobs
func (s *Scheduler) Start() {
	s.log.Info("Starting scheduler")
	s.cron.Start()
}

// Stop halts the cron loop, cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.log.Info("Stopping scheduler")
	done := s.cron.Stop()
	s.cancel()
	<-done.Done()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// NextRun returns the next fire time; it is zero until Start has been called
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	id, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) lookup(name string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return job, nil
}

// RunJob triggers a job in the background, outside its schedule
func (s *Scheduler) RunJob(name string) error {
	job, err := s.lookup(name)
	if err != nil {
		return err
	}
	go s.runJob(job)
	return nil
}

// RunJobSync runs a job in the caller's goroutine and returns its result
func (s *Scheduler) RunJobSync(name string) (JobResult, error) {
	job, err := s.lookup(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.runJob(job), nil
}

// acquire marks name as running; false when a previous run is still going
func (s *Scheduler) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	s.wg.Add(1)
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Scheduler) runJob(job Job) JobResult {
	name := job.Name()
	result := JobResult{JobName: name, StartTime: time.Now()}

	if !s.acquire(name) {
		s.log.WithField("job", name).Warn("Job still running, skipping")
		result.EndTime = result.StartTime
		result.Skipped = true
		return result
	}
	defer s.release(name)

	log := s.log.WithField("job", name)
	log.Info("Job started")

	err := s.retry(job, &result, log)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}
	s.record(result)

	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"duration": result.Duration,
			"attempts": result.Attempts,
		}).Error("Job failed after all retries")
	} else {
		log.WithField("duration", result.Duration).Info("Job completed successfully")
	}
	return result
}

// retry runs up to MaxRetries+1 attempts; Stop aborts the wait between them
func (s *Scheduler) retry(job Job, result *JobResult, log *logger.Logger) error {
	var err error
	for result.Attempts <= s.opts.MaxRetries {
		result.Attempts++
		if err = s.runOnce(job); err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", result.Attempts).Warn("Job execution failed")

		if result.Attempts > s.opts.MaxRetries {
			break
		}
		select {
		case <-s.ctx.Done():
			return err
		case <-time.After(s.opts.RetryDelay):
		}
	}
	return err
}

// runOnce runs one attempt under the scheduler context and job timeout.
// A panic inside the job becomes an error so the cron loop survives it.
func (s *Scheduler) runOnce(job Job) (err error) {
	ctx := s.ctx
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("stack", string(debug.Stack())).Error("Job panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) record(result JobResult) {
	s.mu.Lock()
	if h, ok := s.history[result.JobName]; ok {
		h.AddResult(result)
	}
	s.mu.Unlock()

	if s.opts.OnResult != nil {
		s.opts.OnResult(result)
	}
}

// GetJobHistory returns a snapshot of the history for a specific job.
// Later runs do not change the returned value.
func (s *Scheduler) GetJobHistory(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.history[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return &JobHistory{Results: slices.Clone(h.Results)}, nil
}

// GetAllJobs returns the registered job names, sorted
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetJobStats returns statistics for all registered jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, job := range s.jobs {
		stats[name] = s.history[name].Stats(name, job.Schedule())
	}
	return stats
}
