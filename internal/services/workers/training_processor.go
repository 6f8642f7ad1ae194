package workers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
	"github.com/killallgit/sensitive-data-api/internal/services/training"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// CycleRunner runs one training cycle to a terminal state
type CycleRunner interface {
	RunTrainingCycle(ctx context.Context, cfg training.CycleConfig) (*models.TrainingRun, error)
}

// TrainingProcessor runs training_cycle jobs through the active learning pipeline
type TrainingProcessor struct {
	jobService jobs.Service
	runner     CycleRunner
	defaults   training.CycleConfig
	log        *zap.Logger
}

// NewTrainingProcessor creates a processor whose payload fields override defaults
func NewTrainingProcessor(jobService jobs.Service, runner CycleRunner, defaults training.CycleConfig, log *zap.Logger) *TrainingProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrainingProcessor{
		jobService: jobService,
		runner:     runner,
		defaults:   defaults,
		log:        log.Named("training_processor"),
	}
}

// CanProcess returns true if this processor can handle the job type
func (p *TrainingProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeTrainingCycle
}

// ProcessJob runs the cycle and completes the job with the run summary
func (p *TrainingProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if !p.CanProcess(job.Type) {
		return fmt.Errorf("unsupported job type: %s", job.Type)
	}

	cfg := CycleConfigFromPayload(p.defaults, job)
	jobID := job.ID
	cfg.JobID = &jobID
	cfg.Progress = func(percent int) {
		if err := p.jobService.UpdateProgress(ctx, job.ID, percent); err != nil {
			p.log.Warn("failed to update job progress", zap.Uint("job_id", job.ID), zap.Error(err))
		}
	}

	run, err := p.runner.RunTrainingCycle(ctx, cfg)
	if err != nil {
		return jobError(run, err)
	}

	result := models.JobResult{
		"run_id":   run.ID,
		"run_uuid": run.UUID,
		"status":   string(run.Status),
		"f1":       run.F1,
	}
	if run.ModelVersionID != nil {
		result["model_version_id"] = *run.ModelVersionID
	}
	if err := p.jobService.CompleteJob(ctx, job.ID, result); err != nil {
		return models.NewSystemError("COMPLETE_FAILED", "failed to complete job", err.Error(), err)
	}
	return nil
}

// CycleConfigFromPayload overlays the job payload on the default cycle
func CycleConfigFromPayload(defaults training.CycleConfig, job *models.Job) training.CycleConfig {
	cfg := defaults
	if v, ok := job.GetPayloadString("lineage"); ok && v != "" {
		cfg.Lineage = v
	}
	if v, ok := job.GetPayloadInt("iterations"); ok {
		cfg.Iterations = v
	}
	if v, ok := job.GetPayloadInt("batch_size"); ok {
		cfg.BatchSize = v
	}
	if v, ok := job.GetPayloadFloat("dropout"); ok {
		cfg.Dropout = v
	}
	if v, ok := job.GetPayloadFloat("test_split"); ok {
		cfg.TestSplit = v
	}
	if v, ok := job.GetPayloadInt("min_samples"); ok {
		cfg.MinSamples = v
	}
	if v, ok := job.GetPayloadInt("seed"); ok {
		cfg.Seed = int64(v)
	}
	if v, ok := job.GetPayloadBool("include_feedback"); ok {
		cfg.IncludeFeedback = v
	}
	if v, ok := job.GetPayloadBool("include_datasets"); ok {
		cfg.IncludeDatasets = v
	}
	if v, ok := job.GetPayloadInt("limit"); ok {
		cfg.Limit = v
	}
	cfg.CreatedBy = job.CreatedBy
	return cfg
}

// jobError classifies a pipeline error so the queue knows whether a retry can help
func jobError(run *models.TrainingRun, err error) error {
	code := apperrors.GetCode(err)

	errType := models.ErrorTypeSystem
	switch code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingField, apperrors.ErrCodeInsufficientTrainingData:
		errType = models.ErrorTypeData
	case apperrors.ErrCodeConcurrentTrainingConflict:
		errType = models.ErrorTypeConflict
	case apperrors.ErrCodeTrainingFailure, apperrors.ErrCodeTrainingCancelled:
		errType = models.ErrorTypeTraining
	}

	details := ""
	if run != nil {
		details = fmt.Sprintf("training run %d (%s)", run.ID, run.UUID)
	}
	return models.NewJobError(errType, string(code), err.Error(), details, err)
}
