package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/internal/scheduler"
	"github.com/wonny/vigil/pkg/logger"
)

// InstrumentLister loads the instruments that should be monitored.
type InstrumentLister interface {
	ListEnabled(ctx context.Context) ([]instrument.Instrument, error)
}

// Registry is the scheduler surface the sync job reconciles against.
type Registry interface {
	AddJob(job scheduler.Job) error
	RemoveJob(jobName string) error
	Has(jobName string) bool
	GetAllJobs() []string
}

// SyncJob reconciles the scheduler with the instrument table: newly
// enabled instruments get a monitor job, disabled or deleted ones
// lose theirs. Any instrument edit takes effect by remove + re-add,
// so a job never runs with a stale row snapshot past one sync pass.
// ⭐ SSOT: 종목 작업 등록은 이 동기화에서만
type SyncJob struct {
	instruments InstrumentLister
	registry    Registry
	runner      Runner
	logger      *logger.Logger

	// registered remembers each job's row version so an edit is
	// detected without touching the cron entry type. mu serializes
	// reconciliation passes; the concurrency cap allows overlapping
	// firings of the same job.
	mu         sync.Mutex
	registered map[string]jobState
}

// jobState is the row version a monitor job was registered with.
type jobState struct {
	schedule  string
	updatedAt time.Time
}

func stateOf(inst *instrument.Instrument) jobState {
	return jobState{
		schedule:  fmt.Sprintf("@every %ds", inst.Interval),
		updatedAt: inst.UpdatedAt,
	}
}

func (s jobState) equal(o jobState) bool {
	return s.schedule == o.schedule && s.updatedAt.Equal(o.updatedAt)
}

// NewSyncJob creates an instrument sync job.
func NewSyncJob(instruments InstrumentLister, registry Registry, runner Runner, log *logger.Logger) *SyncJob {
	return &SyncJob{
		instruments: instruments,
		registry:    registry,
		runner:      runner,
		logger:      log,
		registered:  make(map[string]jobState),
	}
}

// Name returns the job name
func (j *SyncJob) Name() string {
	return "instrument_sync"
}

// Schedule reconciles every 5 minutes.
func (j *SyncJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run performs one reconciliation pass.
func (j *SyncJob) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	enabled, err := j.instruments.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled instruments: %w", err)
	}

	want := make(map[string]*instrument.Instrument, len(enabled))
	for i := range enabled {
		inst := &enabled[i]
		want[MonitorJobName(inst.Symbol)] = inst
	}

	added, removed := 0, 0

	// Drop monitor jobs whose instrument is gone or disabled, and
	// re-register when the row changed since registration.
	for _, jobName := range j.registry.GetAllJobs() {
		if !strings.HasPrefix(jobName, "monitor_") {
			continue
		}

		inst, keep := want[jobName]
		if keep && j.registered[jobName].equal(stateOf(inst)) {
			continue
		}

		if err := j.registry.RemoveJob(jobName); err != nil {
			j.logger.WithError(err).WithField("job", jobName).Error("Failed to remove monitor job")
			continue
		}
		delete(j.registered, jobName)
		removed++
	}

	for jobName, inst := range want {
		if j.registry.Has(jobName) {
			continue
		}

		job := NewMonitorJob(inst, j.runner)
		if err := j.registry.AddJob(job); err != nil {
			j.logger.WithError(err).WithField("job", jobName).Error("Failed to add monitor job")
			continue
		}
		j.registered[jobName] = stateOf(inst)
		added++
	}

	if added > 0 || removed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"added":   added,
			"removed": removed,
			"active":  len(want),
		}).Info("Instrument jobs synchronized")
	}

	return nil
}
