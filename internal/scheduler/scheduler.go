package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/vigil/pkg/logger"
)

// Scheduler owns one recurring cron entry per registered job. Jobs
// run on independent goroutines, so one instrument's slow run never
// delays another's. Per-job concurrency is bounded: each entry holds
// a small slot pool, and a tick that cannot claim a slot within the
// grace window is dropped for that tick.
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	logger  *logger.Logger
	entries map[string]*entry
	mu      sync.RWMutex

	maxConcurrent int           // slots per job
	tickGrace     time.Duration // how long a late tick may wait for a slot
}

type entry struct {
	job     Job
	cronID  cron.EntryID
	slots   chan struct{}
	history *JobHistory
	histMu  sync.Mutex
}

// New creates a new scheduler
func New(log *logger.Logger, maxConcurrentPerJob int, tickGrace time.Duration) *Scheduler {
	if maxConcurrentPerJob < 1 {
		maxConcurrentPerJob = 1
	}

	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		logger:        log,
		entries:       make(map[string]*entry),
		maxConcurrent: maxConcurrentPerJob,
		tickGrace:     tickGrace,
	}
}

// AddJob registers a job under its name.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	if _, exists := s.entries[jobName]; exists {
		return fmt.Errorf("job %s already exists", jobName)
	}

	e := &entry{
		job:     job,
		slots:   make(chan struct{}, s.maxConcurrent),
		history: &JobHistory{},
	}

	cronID, err := s.cron.AddFunc(job.Schedule(), func() {
		s.tick(e)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", jobName, err)
	}

	e.cronID = cronID
	s.entries[jobName] = e

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob deregisters a job. An in-flight run is allowed to finish;
// only future ticks stop.
func (s *Scheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[jobName]
	if !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	s.cron.Remove(e.cronID)
	delete(s.entries, jobName)
	s.logger.WithField("job", jobName).Info("Job removed from scheduler")

	return nil
}

// Has reports whether a job is registered.
func (s *Scheduler) Has(jobName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jobName]
	return ok
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops issuing ticks and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob runs a specific job immediately (outside of schedule)
func (s *Scheduler) RunJob(jobName string) error {
	s.mu.RLock()
	e, exists := s.entries[jobName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", jobName)
	}

	go s.tick(e)
	return nil
}

// tick claims a run slot for one firing of a job. The firing is
// dropped when every slot stays busy past the grace window; a
// non-positive grace drops saturated firings immediately.
func (s *Scheduler) tick(e *entry) {
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
		s.runJob(e)
		return
	default:
	}

	if s.tickGrace > 0 {
		timer := time.NewTimer(s.tickGrace)
		defer timer.Stop()

		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
			s.runJob(e)
			return
		case <-timer.C:
		}
	}

	e.histMu.Lock()
	e.history.DroppedTicks++
	e.histMu.Unlock()

	s.logger.WithField("job", e.job.Name()).Warn("Tick dropped, job saturated past grace window")
}

// runJob executes one firing with fault isolation: a panic or error
// in one job never reaches another job's goroutine.
func (s *Scheduler) runJob(e *entry) {
	jobName := e.job.Name()
	startTime := time.Now()

	s.logger.WithField("job", jobName).Debug("Job started")

	err := s.runIsolated(e.job)

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	result := JobResult{
		JobName:   jobName,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}

	e.histMu.Lock()
	e.history.AddResult(result)
	e.histMu.Unlock()

	if err == nil {
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
		}).Debug("Job completed")
	} else {
		// The job is not disabled; the next scheduled tick retries.
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
			"error":    err.Error(),
		}).Error("Job failed")
	}
}

func (s *Scheduler) runIsolated(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return job.Run(context.Background())
}

// GetAllJobs returns all registered job names
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]string, 0, len(s.entries))
	for jobName := range s.entries {
		jobs = append(jobs, jobName)
	}

	return jobs
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	DroppedTicks int        `json:"dropped_ticks"`
	LastRun      *time.Time `json:"last_run,omitempty"`
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats)

	for jobName, e := range s.entries {
		e.histMu.Lock()

		failureCount := 0
		for _, r := range e.history.Results {
			if !r.Success {
				failureCount++
			}
		}

		var lastRun *time.Time
		if latest := e.history.GetLatestResults(1); len(latest) > 0 {
			t := latest[0].StartTime
			lastRun = &t
		}

		stats[jobName] = JobStats{
			JobName:      jobName,
			Schedule:     e.job.Schedule(),
			TotalRuns:    len(e.history.Results),
			SuccessCount: len(e.history.Results) - failureCount,
			FailureCount: failureCount,
			SuccessRate:  e.history.GetSuccessRate(),
			DroppedTicks: e.history.DroppedTicks,
			LastRun:      lastRun,
		}

		e.histMu.Unlock()
	}

	return stats
}
