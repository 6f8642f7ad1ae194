package training

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
	trainingService "github.com/killallgit/sensitive-data-api/internal/services/training"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// CreateRun starts a training cycle
// @Summary      Start a training run
// @Description  Enqueues a training_cycle job for the worker pool. With wait=true the cycle runs inside the request.
// @Tags         training
// @Accept       json
// @Produce      json
// @Param        X-User-ID header string false "Caller identity"
// @Param        wait query bool false "Run synchronously"
// @Param        request body types.TrainingRunRequest false "Overrides of the configured defaults"
// @Success      200 {object} types.TrainingRunResponse "Completed run (wait=true)"
// @Success      202 {object} types.TrainingRunQueuedResponse "Queued"
// @Failure      400 {object} types.ErrorResponse "Invalid parameters"
// @Failure      409 {object} types.ErrorResponse "Another run holds the lineage"
// @Failure      422 {object} types.ErrorResponse "Not enough training data"
// @Router       /api/v1/training/runs [post]
func CreateRun(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.TrainingRunRequest
		if c.Request.ContentLength != 0 {
			if !types.BindJSONOrError(c, &req) {
				return
			}
		}
		wait, ok := types.QueryBool(c, "wait")
		if !ok {
			return
		}

		cfg := applyOverrides(deps.TrainingDefaults, req)
		cfg.CreatedBy = types.UserID(c)
		if err := cfg.Validate(); err != nil {
			types.SendError(c, err)
			return
		}

		if wait != nil && *wait {
			runSynchronously(c, deps, cfg)
			return
		}

		if deps.JobService == nil {
			types.SendError(c, apperrors.New(apperrors.ErrCodeModelUnavailable, "training queue is not configured"))
			return
		}
		job, err := deps.JobService.EnqueueUniqueJob(c.Request.Context(), models.JobTypeTrainingCycle, payloadFor(cfg), "lineage",
			jobs.WithPriority(req.Priority),
			jobs.WithCreatedBy(cfg.CreatedBy))
		if err != nil {
			types.SendError(c, apperrors.DatabaseError("enqueue training job", err))
			return
		}

		c.JSON(http.StatusAccepted, types.TrainingRunQueuedResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusQueued, Message: "Training run queued"},
			JobID:        job.ID,
			Lineage:      cfg.Lineage,
		})
	}
}

func runSynchronously(c *gin.Context, deps *types.Dependencies, cfg trainingService.CycleConfig) {
	run, err := deps.Pipeline.RunTrainingCycle(c.Request.Context(), cfg)
	if err != nil {
		status, body := types.ErrorBody(err)
		if run != nil {
			body.Details = gin.H{"run_id": run.ID, "run_uuid": run.UUID}
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, types.TrainingRunResponse{
		BaseResponse: types.BaseResponse{Status: types.StatusOK},
		Run:          run,
	})
}

func applyOverrides(cfg trainingService.CycleConfig, req types.TrainingRunRequest) trainingService.CycleConfig {
	if req.Lineage != "" {
		cfg.Lineage = req.Lineage
	}
	if req.Iterations != nil {
		cfg.Iterations = *req.Iterations
	}
	if req.BatchSize != nil {
		cfg.BatchSize = *req.BatchSize
	}
	if req.Dropout != nil {
		cfg.Dropout = *req.Dropout
	}
	if req.TestSplit != nil {
		cfg.TestSplit = *req.TestSplit
	}
	if req.MinSamples != nil {
		cfg.MinSamples = *req.MinSamples
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.IncludeFeedback != nil {
		cfg.IncludeFeedback = *req.IncludeFeedback
	}
	if req.IncludeDatasets != nil {
		cfg.IncludeDatasets = *req.IncludeDatasets
	}
	if req.Limit != nil {
		cfg.Limit = *req.Limit
	}
	return cfg
}

// payloadFor records the full cycle on the job so workers do not depend on their own defaults
func payloadFor(cfg trainingService.CycleConfig) models.JobPayload {
	return models.JobPayload{
		"lineage":          cfg.Lineage,
		"iterations":       cfg.Iterations,
		"batch_size":       cfg.BatchSize,
		"dropout":          cfg.Dropout,
		"test_split":       cfg.TestSplit,
		"min_samples":      cfg.MinSamples,
		"seed":             cfg.Seed,
		"include_feedback": cfg.IncludeFeedback,
		"include_datasets": cfg.IncludeDatasets,
		"limit":            cfg.Limit,
	}
}

// ListRuns returns training runs, newest first
// @Summary      List training runs
// @Tags         training
// @Produce      json
// @Param        lineage query string false "Filter by lineage"
// @Param        status query string false "queued, running, completed or failed"
// @Param        limit query int false "Page size" default(50)
// @Param        offset query int false "Page offset" default(0)
// @Success      200 {object} training.RunPage
// @Router       /api/v1/training/runs [get]
func ListRuns(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := models.TrainingRunStatus(c.Query("status"))
		switch status {
		case "", models.TrainingRunQueued, models.TrainingRunRunning, models.TrainingRunCompleted, models.TrainingRunFailed:
		default:
			types.SendBadRequest(c, "Invalid status")
			return
		}

		page, err := deps.Pipeline.ListRuns(c.Request.Context(), trainingService.ListFilters{
			Lineage: c.Query("lineage"),
			Status:  status,
			Limit:   types.QueryInt(c, "limit", 50),
			Offset:  types.QueryInt(c, "offset", 0),
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, page)
	}
}

// GetRun returns one training run
// @Summary      Get training run
// @Tags         training
// @Produce      json
// @Param        id path int true "Run ID"
// @Success      200 {object} types.TrainingRunResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/training/runs/{id} [get]
func GetRun(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		run, err := deps.Pipeline.GetRun(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, types.TrainingRunResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Run:          run,
		})
	}
}

// CancelRun asks an executing run to stop at its next checkpoint
// @Summary      Cancel training run
// @Tags         training
// @Produce      json
// @Param        id path int true "Run ID"
// @Success      202 {object} types.BaseResponse "Cancellation requested"
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Failure      409 {object} types.ErrorResponse "Run is not executing here"
// @Router       /api/v1/training/runs/{id}/cancel [post]
func CancelRun(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		run, err := deps.Pipeline.GetRun(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		if run.Status.IsTerminal() {
			types.SendError(c, apperrors.New(apperrors.ErrCodeConflict, "training run "+strconv.FormatUint(uint64(id), 10)+" already finished").
				WithDetail("status", run.Status))
			return
		}
		if !deps.Pipeline.Cancel(id) {
			types.SendError(c, apperrors.New(apperrors.ErrCodeConflict, "training run is not executing on this instance"))
			return
		}

		deps.Logger().Info("training run cancellation requested", zapRun(id), zapUser(c))
		c.JSON(http.StatusAccepted, types.BaseResponse{Status: types.StatusOK, Message: "Cancellation requested"})
	}
}
