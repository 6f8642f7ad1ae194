package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
)

// JobCleanupProcessor deletes terminal jobs past the retention window
type JobCleanupProcessor struct {
	jobService    jobs.Service
	retentionDays int
	log           *zap.Logger
}

// NewJobCleanupProcessor creates a cleanup processor; payload retention_days overrides the default
func NewJobCleanupProcessor(jobService jobs.Service, retentionDays int, log *zap.Logger) *JobCleanupProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &JobCleanupProcessor{
		jobService:    jobService,
		retentionDays: retentionDays,
		log:           log.Named("cleanup_processor"),
	}
}

// CanProcess returns true if this processor can handle the job type
func (p *JobCleanupProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeJobCleanup
}

// ProcessJob removes old jobs and records how many went
func (p *JobCleanupProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if !p.CanProcess(job.Type) {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}

	days := p.retentionDays
	if v, ok := job.GetPayloadInt("retention_days"); ok {
		days = v
	}
	if days <= 0 {
		return models.NewJobError(models.ErrorTypeData, "INVALID_RETENTION", "retention_days must be positive", "", nil)
	}

	deleted, err := p.jobService.CleanupOldJobs(ctx, days)
	if err != nil {
		return models.NewSystemError("CLEANUP_FAILED", "failed to clean up jobs", err.Error(), err)
	}

	p.log.Info("job cleanup finished", zap.Int64("deleted", deleted), zap.Int("retention_days", days))
	return p.jobService.CompleteJob(ctx, job.ID, models.JobResult{"deleted": deleted, "retention_days": days})
}
