package feedback

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
	feedbackService "github.com/killallgit/sensitive-data-api/internal/services/feedback"
)

// Create stores a user's judgement of a classification result
// @Summary      Submit feedback
// @Description  Incorrect feedback with corrected entities also becomes an unverified training example
// @Tags         feedback
// @Accept       json
// @Produce      json
// @Param        X-User-ID header string false "Caller identity"
// @Param        feedback body types.FeedbackRequest true "Feedback"
// @Success      201 {object} types.FeedbackCreatedResponse
// @Failure      400 {object} types.ErrorResponse "Invalid request"
// @Router       /api/v1/feedback [post]
func Create(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.FeedbackRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		id, err := deps.FeedbackService.SubmitFeedback(c.Request.Context(), feedbackService.SubmitRequest{
			Text:              req.Text,
			Entities:          req.Entities,
			IsCorrect:         *req.IsCorrect,
			CorrectedEntities: req.CorrectedEntities,
			CorrectedType:     req.CorrectedType,
			Notes:             req.Notes,
			UserID:            types.UserID(c),
		})
		if err != nil {
			types.SendError(c, err)
			return
		}

		types.SendCreated(c, types.FeedbackCreatedResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Feedback recorded"},
			FeedbackID:   id,
		})
	}
}

// List returns feedback, newest first
// @Summary      List feedback
// @Tags         feedback
// @Produce      json
// @Param        is_correct query bool false "Filter by judgement"
// @Param        incorporated query bool false "Filter by whether a training run consumed it"
// @Param        user_id query string false "Filter by user"
// @Param        since query string false "RFC3339 lower bound on creation time"
// @Param        limit query int false "Page size" default(50)
// @Param        offset query int false "Page offset" default(0)
// @Success      200 {object} feedback.Page
// @Failure      400 {object} types.ErrorResponse "Invalid filter"
// @Router       /api/v1/feedback [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		isCorrect, ok := types.QueryBool(c, "is_correct")
		if !ok {
			return
		}
		incorporated, ok := types.QueryBool(c, "incorporated")
		if !ok {
			return
		}

		filters := feedbackService.ListFilters{
			IsCorrect:    isCorrect,
			Incorporated: incorporated,
			UserID:       c.Query("user_id"),
			Limit:        types.QueryInt(c, "limit", feedbackService.DefaultPageSize),
			Offset:       types.QueryInt(c, "offset", 0),
		}
		if raw := c.Query("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				types.SendBadRequest(c, "Invalid since, expected RFC3339")
				return
			}
			filters.Since = &since
		}

		page, err := deps.FeedbackService.ListFeedback(c.Request.Context(), filters)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, page)
	}
}

// Get returns one feedback row
// @Summary      Get feedback
// @Tags         feedback
// @Produce      json
// @Param        id path int true "Feedback ID"
// @Success      200 {object} models.Feedback
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/feedback/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		fb, err := deps.FeedbackService.GetFeedback(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, fb)
	}
}

// GetStats aggregates recent feedback
// @Summary      Feedback statistics
// @Description  Accuracy, daily trend and per-user volume over a window of days
// @Tags         feedback
// @Produce      json
// @Param        days query int false "Window in days" default(30)
// @Success      200 {object} feedback.Stats
// @Router       /api/v1/feedback/stats [get]
func GetStats(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := types.QueryInt(c, "days", 0)
		if days < 0 {
			types.SendBadRequest(c, "days must not be negative")
			return
		}

		stats, err := deps.FeedbackService.GetStats(c.Request.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			types.SendError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
