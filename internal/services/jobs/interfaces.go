package jobs

import (
	"context"
	"time"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// Service is the background queue behind POST /training/start and the
// periodic retention sweep. Handlers enqueue and inspect; the worker pool
// claims jobs and reports back.
type Service interface {
	EnqueueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error)
	// EnqueueUniqueJob returns the live job sharing payload[uniqueKey]
	// instead of queueing a duplicate
	EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error)

	GetJob(ctx context.Context, jobID uint) (*models.Job, error)
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error)
	UpdateProgress(ctx context.Context, jobID uint, progress int) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error
	FailJob(ctx context.Context, jobID uint, err error) error
	FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error
	ReleaseJob(ctx context.Context, jobID uint) error
	// ReleaseStale requeues processing jobs claimed more than olderThan ago
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)

	RetryFailedJob(ctx context.Context, jobID uint) (*models.Job, error)
	CancelJob(ctx context.Context, jobID uint) error
	CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error)
	DeletePermanentlyFailedJob(ctx context.Context, jobID uint) error
}

// JobOption tunes a job at enqueue time
type JobOption func(*jobConfig)

type jobConfig struct {
	priority   int
	maxRetries int
	createdBy  string
}

// WithPriority orders the job ahead of lower priorities
func WithPriority(priority int) JobOption {
	return func(c *jobConfig) { c.priority = priority }
}

func WithMaxRetries(retries int) JobOption {
	return func(c *jobConfig) { c.maxRetries = retries }
}

// WithCreatedBy records the requesting user
func WithCreatedBy(user string) JobOption {
	return func(c *jobConfig) { c.createdBy = user }
}
