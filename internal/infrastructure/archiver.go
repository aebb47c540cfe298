package infrastructure

import (
	"github.com/yourusername/trackfetch-go/internal/domain"
	"go.uber.org/zap"
)

// JobArchiver persists every job that reaches a terminal state
type JobArchiver struct {
	repo   domain.JobRecordRepository
	logger *zap.Logger
}

// NewJobArchiver creates an observer that writes terminal jobs to repo
func NewJobArchiver(repo domain.JobRecordRepository, logger *zap.Logger) *JobArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobArchiver{repo: repo, logger: logger}
}

// OnJobUpdated is a no-op; only outcomes are archived
func (a *JobArchiver) OnJobUpdated(domain.Job) {}

// OnJobCompleted upserts the terminal job
func (a *JobArchiver) OnJobCompleted(job domain.Job) {
	if !job.IsTerminal() {
		return
	}
	if err := a.repo.Save(domain.NewJobRecord(job)); err != nil {
		a.logger.Error("Failed to archive job",
			zap.String("job_id", job.ID),
			zap.String("state", string(job.State)),
			zap.Error(err))
		return
	}
	a.logger.Debug("Job archived", zap.String("job_id", job.ID), zap.String("state", string(job.State)))
}
