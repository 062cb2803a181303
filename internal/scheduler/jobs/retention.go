package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/vigil/pkg/logger"
)

// RunPruner deletes run records older than a cutoff.
type RunPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob trims the run log down to the configured retention
// window once a day. Deletion is by finished time, so skip and error
// records age out on the same clock as successes.
type RetentionJob struct {
	pruner        RunPruner
	retentionDays int
	logger        *logger.Logger
}

// NewRetentionJob creates a retention job.
func NewRetentionJob(pruner RunPruner, retentionDays int, log *logger.Logger) *RetentionJob {
	return &RetentionJob{
		pruner:        pruner,
		retentionDays: retentionDays,
		logger:        log,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "runlog_retention"
}

// Schedule runs daily at 04:10, outside any monitoring window.
func (j *RetentionJob) Schedule() string {
	return "0 10 4 * * *"
}

// Run prunes run records past the retention window.
func (j *RetentionJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -j.retentionDays)

	deleted, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune run records: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"deleted": deleted,
		"cutoff":  cutoff.Format("2006-01-02"),
	}).Info("Run log retention pass completed")

	return nil
}
