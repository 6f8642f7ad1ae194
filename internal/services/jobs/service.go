package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

const (
	// one automatic retry; data and lock conflicts never retry
	DefaultMaxRetries = 1
	DefaultPriority   = 0
	DefaultListLimit  = 50
)

// ErrJobNotRetryable is returned when a manual retry targets a job that has not failed
var ErrJobNotRetryable = errors.New("job is not failed")

type service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &service{repo: repo, log: log.Named("jobs")}
}

func (s *service) EnqueueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error) {
	cfg := jobConfig{priority: DefaultPriority, maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(&cfg)
	}

	job := &models.Job{
		Type:       jobType,
		Status:     models.JobStatusPending,
		Payload:    payload,
		Priority:   cfg.priority,
		MaxRetries: cfg.maxRetries,
		CreatedBy:  cfg.createdBy,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	s.log.Debug("enqueued job",
		zap.String("type", string(jobType)),
		zap.Uint("job_id", job.ID),
		zap.Int("priority", job.Priority))
	return job, nil
}

func (s *service) EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error) {
	raw, ok := payload[uniqueKey]
	if !ok {
		return nil, fmt.Errorf("unique key %s not found in payload", uniqueKey)
	}
	value := fmt.Sprint(raw)

	existing, err := s.repo.FindLiveJob(ctx, jobType, uniqueKey, value)
	switch {
	case errors.Is(err, ErrJobNotFound):
	case err != nil:
		return nil, fmt.Errorf("look up live %s job: %w", jobType, err)
	case !existing.IsTerminal():
		s.log.Debug("job already queued",
			zap.Uint("job_id", existing.ID),
			zap.String(uniqueKey, value),
			zap.String("status", string(existing.Status)))
		return existing, nil
	}

	return s.EnqueueJob(ctx, jobType, payload, opts...)
}

func (s *service) GetJob(ctx context.Context, jobID uint) (*models.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// ListJobs returns the newest jobs, optionally of one status
func (s *service) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.GetJobsByStatus(ctx, status, limit)
}

func (s *service) ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error) {
	job, err := s.repo.ClaimNextJob(ctx, workerID, jobTypes)
	if err != nil {
		return nil, err
	}
	s.log.Debug("claimed job",
		zap.String("worker_id", workerID),
		zap.String("type", string(job.Type)),
		zap.Uint("job_id", job.ID))
	return job, nil
}

func (s *service) UpdateProgress(ctx context.Context, jobID uint, progress int) error {
	if err := s.repo.UpdateJobProgress(ctx, jobID, progress); err != nil {
		return err
	}
	if progress%25 == 0 {
		s.log.Debug("job progress", zap.Uint("job_id", jobID), zap.Int("progress", progress))
	}
	return nil
}

func (s *service) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	if err := s.repo.CompleteJob(ctx, jobID, result); err != nil {
		return err
	}
	s.log.Debug("job completed", zap.Uint("job_id", jobID))
	return nil
}

// FailJob records err against the job, using its classification when err
// is a *models.StructuredJobError and treating it as a system error otherwise
func (s *service) FailJob(ctx context.Context, jobID uint, err error) error {
	var structured *models.StructuredJobError
	if errors.As(err, &structured) {
		return s.FailJobWithDetails(ctx, jobID, structured.Type, structured.Code, structured.Message, structured.Details)
	}
	return s.FailJobWithDetails(ctx, jobID, models.ErrorTypeSystem, "", err.Error(), "")
}

func (s *service) FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error {
	if err := s.repo.FailJobWithDetails(ctx, jobID, errorType, errorCode, errorMsg, errorDetails); err != nil {
		return err
	}

	log := s.log.With(
		zap.Uint("job_id", jobID),
		zap.String("error_type", string(errorType)),
		zap.String("error_code", errorCode),
		zap.String("error", errorMsg))
	if job, _ := s.repo.GetJob(ctx, jobID); job != nil && job.IsRetryable() {
		log.Warn("job failed, will retry", zap.Int("retry", job.RetryCount), zap.Int("max_retries", job.MaxRetries))
	} else {
		log.Error("job failed permanently")
	}
	return nil
}

func (s *service) ReleaseJob(ctx context.Context, jobID uint) error {
	if err := s.repo.ReleaseJob(ctx, jobID); err != nil {
		return err
	}
	s.log.Debug("job released back to pending", zap.Uint("job_id", jobID))
	return nil
}

func (s *service) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("stale threshold must be positive")
	}
	released, err := s.repo.ReleaseStale(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.log.Warn("released stale jobs", zap.Int64("released", released), zap.Duration("older_than", olderThan))
	}
	return released, nil
}

// RetryFailedJob requeues a failed job with a fresh retry budget
func (s *service) RetryFailedJob(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusFailed && job.Status != models.JobStatusPermanentlyFailed {
		return nil, fmt.Errorf("%w: job %d is %s", ErrJobNotRetryable, jobID, job.Status)
	}
	if err := s.repo.ResetJob(ctx, jobID); err != nil {
		return nil, err
	}

	requeued, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.log.Info("job manually retried",
		zap.Uint("job_id", jobID),
		zap.String("was", string(job.Status)))
	return requeued, nil
}

func (s *service) CancelJob(ctx context.Context, jobID uint) error {
	if err := s.repo.CancelJob(ctx, jobID); err != nil {
		return err
	}
	s.log.Info("job cancelled", zap.Uint("job_id", jobID))
	return nil
}

// CleanupOldJobs deletes finished jobs created more than retentionDays ago
func (s *service) CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errors.New("retention days must be positive")
	}

	deleted, err := s.repo.DeleteOldJobs(ctx, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("deleted old jobs", zap.Int64("deleted", deleted), zap.Int("retention_days", retentionDays))
	}
	return deleted, nil
}

func (s *service) DeletePermanentlyFailedJob(ctx context.Context, jobID uint) error {
	if err := s.repo.DeletePermanentlyFailedJob(ctx, jobID); err != nil {
		return err
	}
	s.log.Info("deleted permanently failed job", zap.Uint("job_id", jobID))
	return nil
}
