package training

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

var errJobNotDeletable = errors.New("only permanently failed jobs can be deleted")

func zapRun(id uint) zap.Field {
	return zap.Uint("run_id", id)
}

func zapUser(c *gin.Context) zap.Field {
	return zap.String("user_id", types.UserID(c))
}

// jobError maps queue errors onto application errors
func jobError(err error, id uint) error {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return apperrors.NotFound("job", id)
	case errors.Is(err, jobs.ErrJobNotCancellable), errors.Is(err, jobs.ErrJobNotRetryable), errors.Is(err, errJobNotDeletable):
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, err.Error())
	default:
		return apperrors.DatabaseError("job", err)
	}
}

// ListJobs returns background jobs, newest first
// @Summary      List jobs
// @Tags         training
// @Produce      json
// @Param        status query string false "Filter by status"
// @Param        limit query int false "Maximum jobs" default(50)
// @Success      200 {array} models.Job
// @Router       /api/v1/training/jobs [get]
func ListJobs(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := deps.JobService.ListJobs(c.Request.Context(), models.JobStatus(c.Query("status")), types.QueryInt(c, "limit", jobs.DefaultListLimit))
		if err != nil {
			types.SendError(c, apperrors.DatabaseError("list jobs", err))
			return
		}
		types.SendSuccess(c, list)
	}
}

// GetJob returns one job
// @Summary      Get job
// @Tags         training
// @Produce      json
// @Param        id path int true "Job ID"
// @Success      200 {object} types.JobResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/training/jobs/{id} [get]
func GetJob(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		job, err := deps.JobService.GetJob(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, jobError(err, id))
			return
		}
		types.SendSuccess(c, types.JobResponse{BaseResponse: types.BaseResponse{Status: types.StatusOK}, Job: job})
	}
}

// CancelJob cancels a job no worker has picked up
// @Summary      Cancel job
// @Tags         training
// @Produce      json
// @Param        id path int true "Job ID"
// @Success      200 {object} types.JobResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Failure      409 {object} types.ErrorResponse "Job already started"
// @Router       /api/v1/training/jobs/{id}/cancel [post]
func CancelJob(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		if err := deps.JobService.CancelJob(c.Request.Context(), id); err != nil {
			types.SendError(c, jobError(err, id))
			return
		}
		job, err := deps.JobService.GetJob(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, jobError(err, id))
			return
		}
		types.SendSuccess(c, types.JobResponse{BaseResponse: types.BaseResponse{Status: types.StatusOK}, Job: job})
	}
}

// RetryJob requeues a failed job
// @Summary      Retry job
// @Tags         training
// @Produce      json
// @Param        id path int true "Job ID"
// @Success      200 {object} types.JobResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Failure      409 {object} types.ErrorResponse "Job has not failed"
// @Router       /api/v1/training/jobs/{id}/retry [post]
func RetryJob(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		job, err := deps.JobService.RetryFailedJob(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, jobError(err, id))
			return
		}
		types.SendSuccess(c, types.JobResponse{BaseResponse: types.BaseResponse{Status: types.StatusQueued}, Job: job})
	}
}

// DeleteJob removes a permanently failed job from the queue
// @Summary      Delete job
// @Tags         training
// @Produce      json
// @Param        id path int true "Job ID"
// @Success      200 {object} types.BaseResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Failure      409 {object} types.ErrorResponse "Job has not permanently failed"
// @Router       /api/v1/training/jobs/{id} [delete]
func DeleteJob(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		job, err := deps.JobService.GetJob(ctx, id)
		if err != nil {
			types.SendError(c, jobError(err, id))
			return
		}
		if job.Status != models.JobStatusPermanentlyFailed {
			types.SendError(c, jobError(fmt.Errorf("%w: job %d is %s", errJobNotDeletable, id, job.Status), id))
			return
		}
		if err := deps.JobService.DeletePermanentlyFailedJob(ctx, id); err != nil {
			types.SendError(c, jobError(err, id))
			return
		}
		deps.Log.Info("job deleted", zap.Uint("job_id", id), zapUser(c))
		types.SendSuccess(c, types.BaseResponse{Status: types.StatusOK})
	}
}
