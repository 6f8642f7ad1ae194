package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrNoJobsAvailable   = errors.New("no jobs available")
	ErrJobNotCancellable = errors.New("job is not pending")
)

// Statuses a worker may still pick up
var claimable = []models.JobStatus{models.JobStatusPending, models.JobStatusFailed}

// Statuses that count as in flight for de-duplication
var live = []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusFailed}

// Repository persists the background queue that runs training cycles and
// retention sweeps
type Repository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uint) (*models.Job, error)
	FindLiveJob(ctx context.Context, jobType models.JobType, key, value string) (*models.Job, error)
	GetJobsByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error)

	ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, jobID uint, progress int) error
	CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error
	FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error
	ReleaseJob(ctx context.Context, jobID uint) error
	ReleaseStale(ctx context.Context, startedBefore time.Time) (int64, error)
	ResetJob(ctx context.Context, jobID uint) error
	CancelJob(ctx context.Context, jobID uint) error

	DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error)
	DeletePermanentlyFailedJob(ctx context.Context, jobID uint) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// update applies fields to the job only while it is in one of the given
// statuses, reporting ErrJobNotFound when nothing matched
func (r *repository) update(ctx context.Context, op string, jobID uint, in []models.JobStatus, fields map[string]interface{}) error {
	q := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID)
	if len(in) > 0 {
		q = q.Where("status IN ?", in)
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("%s job %d: %w", op, jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *repository) CreateJob(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %d: %w", id, err)
	}
	return &job, nil
}

// FindLiveJob returns the newest unfinished job of jobType whose payload has
// key set to value. Used to keep one training cycle per lineage in flight.
func (r *repository) FindLiveJob(ctx context.Context, jobType models.JobType, key, value string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("type = ? AND status IN ?", jobType, live).
		Where("json_extract(payload, ?) = ?", "$."+key, value).
		Order("id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find live %s job: %w", jobType, err)
	}
	return &job, nil
}

// GetJobsByStatus lists newest first; an empty status matches all jobs
func (r *repository) GetJobsByStatus(ctx context.Context, status models.JobStatus, limit int) ([]*models.Job, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []*models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNextJob hands the highest priority claimable job to workerID. The
// row is locked for the duration of the claim so two workers never share it.
func (r *repository) ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error) {
	var job models.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("status IN ?", claimable)
		if len(jobTypes) > 0 {
			q = q.Where("type IN ?", jobTypes)
		}
		if err := q.Order("priority DESC, created_at ASC").First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoJobsAvailable
			}
			return fmt.Errorf("select job to claim: %w", err)
		}

		// retry_count is bumped on failure, not on claim
		now := time.Now()
		job.Status = models.JobStatusProcessing
		job.WorkerID = workerID
		job.StartedAt = &now
		job.Progress = 0
		return tx.Model(&job).Updates(map[string]interface{}{
			"status":     job.Status,
			"worker_id":  workerID,
			"started_at": &now,
			"progress":   0,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobProgress clamps progress to 0..100 and only touches running jobs
func (r *repository) UpdateJobProgress(ctx context.Context, jobID uint, progress int) error {
	progress = max(0, min(progress, 100))
	return r.update(ctx, "progress", jobID, []models.JobStatus{models.JobStatusProcessing},
		map[string]interface{}{"progress": progress})
}

func (r *repository) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	now := time.Now()
	return r.update(ctx, "complete", jobID, nil, map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"progress":     100,
		"completed_at": &now,
		"result":       result,
	})
}

// FailJobWithDetails records a failed attempt. The job goes back in the
// queue as failed until its retries run out or the error is permanent.
func (r *repository) FailJobWithDetails(ctx context.Context, jobID uint, errorType models.JobErrorType, errorCode, errorMsg, errorDetails string) error {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	attempts := job.RetryCount + 1
	fields := map[string]interface{}{
		"status":         models.JobStatusFailed,
		"error":          errorMsg,
		"error_type":     string(errorType),
		"error_code":     errorCode,
		"error_details":  errorDetails,
		"last_failed_at": &now,
		"retry_count":    attempts,
		"worker_id":      "",
	}
	if errorType.Permanent() || attempts > job.MaxRetries {
		fields["status"] = models.JobStatusPermanentlyFailed
		fields["completed_at"] = &now
	}
	return r.update(ctx, "fail", jobID, nil, fields)
}

// ReleaseJob returns a job held by a stopping worker to the queue untouched
func (r *repository) ReleaseJob(ctx context.Context, jobID uint) error {
	return r.update(ctx, "release", jobID, []models.JobStatus{models.JobStatusProcessing}, map[string]interface{}{
		"status":     models.JobStatusPending,
		"worker_id":  "",
		"started_at": nil,
		"progress":   0,
	})
}

// ReleaseStale returns every job claimed before startedBefore and still
// processing to the queue. Its worker is assumed dead.
func (r *repository) ReleaseStale(ctx context.Context, startedBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND started_at < ?", models.JobStatusProcessing, startedBefore).
		Updates(map[string]interface{}{
			"status":     models.JobStatusPending,
			"worker_id":  "",
			"started_at": nil,
			"progress":   0,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release jobs started before %s: %w", startedBefore.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

// ResetJob requeues a failed job with a fresh retry budget
func (r *repository) ResetJob(ctx context.Context, jobID uint) error {
	failed := []models.JobStatus{models.JobStatusFailed, models.JobStatusPermanentlyFailed}
	return r.update(ctx, "reset", jobID, failed, map[string]interface{}{
		"status":      models.JobStatusPending,
		"worker_id":   "",
		"started_at":  nil,
		"progress":    0,
		"retry_count": 0,
		"error":       "",
	})
}

// CancelJob withdraws a job no worker holds
func (r *repository) CancelJob(ctx context.Context, jobID uint) error {
	now := time.Now()
	err := r.update(ctx, "cancel", jobID, claimable, map[string]interface{}{
		"status":       models.JobStatusCancelled,
		"completed_at": &now,
	})
	if !errors.Is(err, ErrJobNotFound) {
		return err
	}
	if _, err := r.GetJob(ctx, jobID); err != nil {
		return err
	}
	return ErrJobNotCancellable
}

// DeleteOldJobs removes finished jobs created before olderThan
func (r *repository) DeleteOldJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	finished := []models.JobStatus{models.JobStatusCompleted, models.JobStatusPermanentlyFailed, models.JobStatusCancelled}
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", olderThan, finished).
		Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge jobs before %s: %w", olderThan.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) DeletePermanentlyFailedJob(ctx context.Context, jobID uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", jobID, models.JobStatusPermanentlyFailed).
		Delete(&models.Job{})
	if res.Error != nil {
		return fmt.Errorf("delete job %d: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}
