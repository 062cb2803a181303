package handlers

import (
	"net/http"

	"github.com/wonny/vigil/internal/scheduler"
	"github.com/wonny/vigil/pkg/logger"
)

// JobHandler exposes scheduler state
type JobHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(s *scheduler.Scheduler, log *logger.Logger) *JobHandler {
	return &JobHandler{
		scheduler: s,
		logger:    log,
	}
}

// GetStats returns per-job run statistics
// GET /api/jobs
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.GetJobStats())
}
