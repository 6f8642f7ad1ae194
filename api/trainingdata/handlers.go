package trainingdata

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/models"
	dataService "github.com/killallgit/sensitive-data-api/internal/services/trainingdata"
)

// List returns training examples, newest first
// @Summary      List training examples
// @Tags         training-data
// @Produce      json
// @Param        source query string false "user_feedback, manual or imported"
// @Param        verified query bool false "Filter by verification"
// @Param        classification_type query string false "Filter by type"
// @Param        limit query int false "Page size" default(50)
// @Param        offset query int false "Page offset" default(0)
// @Success      200 {object} trainingdata.Page
// @Failure      400 {object} types.ErrorResponse "Invalid filter"
// @Router       /api/v1/training-data [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		verified, ok := types.QueryBool(c, "verified")
		if !ok {
			return
		}

		page, err := deps.TrainingDataService.ListExamples(c.Request.Context(), dataService.ListFilters{
			Source:             models.TrainingExampleSource(c.Query("source")),
			Verified:           verified,
			ClassificationType: c.Query("classification_type"),
			Limit:              types.QueryInt(c, "limit", dataService.DefaultPageSize),
			Offset:             types.QueryInt(c, "offset", 0),
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, page)
	}
}

// Create adds a curated training example
// @Summary      Add training example
// @Tags         training-data
// @Accept       json
// @Produce      json
// @Param        X-User-ID header string false "Caller identity"
// @Param        example body types.TrainingExampleRequest true "Example"
// @Success      201 {object} models.TrainingExample
// @Failure      400 {object} types.ErrorResponse "Invalid request"
// @Router       /api/v1/training-data [post]
func Create(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.TrainingExampleRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		add := dataService.AddRequest{
			Text:               req.Text,
			Entities:           req.Entities,
			ClassificationType: req.ClassificationType,
			Source:             models.TrainingExampleSource(req.Source),
			Language:           req.Language,
			Verified:           req.Verified,
		}
		if req.Verified {
			add.VerifiedBy = types.UserID(c)
		}

		example, err := deps.TrainingDataService.AddExample(c.Request.Context(), add)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendCreated(c, example)
	}
}

// Get returns one training example
// @Summary      Get training example
// @Tags         training-data
// @Produce      json
// @Param        id path int true "Example ID"
// @Success      200 {object} models.TrainingExample
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/training-data/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		example, err := deps.TrainingDataService.GetExample(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, example)
	}
}

// Verify marks an example as checked by a curator
// @Summary      Verify training example
// @Tags         training-data
// @Produce      json
// @Param        X-User-ID header string false "Caller identity"
// @Param        id path int true "Example ID"
// @Success      200 {object} models.TrainingExample
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/training-data/{id}/verify [post]
func Verify(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		example, err := deps.TrainingDataService.VerifyExample(c.Request.Context(), id, types.UserID(c))
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, example)
	}
}

// GetStats counts examples by source
// @Summary      Training data statistics
// @Tags         training-data
// @Produce      json
// @Success      200 {object} trainingdata.Stats
// @Router       /api/v1/training-data/stats [get]
func GetStats(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := deps.TrainingDataService.GetStats(c.Request.Context())
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, stats)
	}
}
