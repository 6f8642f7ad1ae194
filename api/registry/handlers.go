package registry

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
	registryService "github.com/killallgit/sensitive-data-api/internal/services/registry"
)

// List returns model versions, newest first
// @Summary      List model versions
// @Tags         models
// @Produce      json
// @Param        lineage query string false "Filter by lineage"
// @Param        active query bool false "Filter by active flag"
// @Param        limit query int false "Page size" default(50)
// @Param        offset query int false "Page offset" default(0)
// @Success      200 {object} registry.Page
// @Router       /api/v1/models [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		active, ok := types.QueryBool(c, "active")
		if !ok {
			return
		}
		page, err := deps.RegistryService.List(c.Request.Context(), registryService.ListFilters{
			Lineage: c.Query("lineage"),
			Active:  active,
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

// Get returns one model version with its metrics
// @Summary      Get model version
// @Tags         models
// @Produce      json
// @Param        id path int true "Model version ID"
// @Success      200 {object} types.ModelVersionResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/models/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		version, err := deps.RegistryService.Get(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		metrics, err := deps.RegistryService.GetMetrics(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, types.ModelVersionResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Model:        version,
			Metrics:      metrics,
		})
	}
}

// GetMetrics returns the evaluation metrics of a model version
// @Summary      Model version metrics
// @Tags         models
// @Produce      json
// @Param        id path int true "Model version ID"
// @Success      200 {array} models.ModelMetric
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/models/{id}/metrics [get]
func GetMetrics(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		metrics, err := deps.RegistryService.GetMetrics(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, metrics)
	}
}

// Promote makes a version the active model of its lineage
// @Summary      Promote model version
// @Description  The version becomes the only active version of its lineage and the classifier reloads it
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        X-User-ID header string false "Caller identity"
// @Param        id path int true "Model version ID"
// @Param        request body types.PromoteRequest false "Promotion options"
// @Success      200 {object} types.ModelVersionResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/models/{id}/promote [post]
func Promote(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		var req types.PromoteRequest
		if c.Request.ContentLength != 0 {
			if !types.BindJSONOrError(c, &req) {
				return
			}
		}

		version, err := deps.RegistryService.Promote(c.Request.Context(), id, registryService.PromoteOptions{
			Production: req.Production,
			PromotedBy: types.UserID(c),
		})
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, types.ModelVersionResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Model version promoted"},
			Model:        version,
		})
	}
}

// Deactivate clears the active flag of a version
// @Summary      Deactivate model version
// @Tags         models
// @Produce      json
// @Param        id path int true "Model version ID"
// @Success      200 {object} types.ModelVersionResponse
// @Failure      404 {object} types.ErrorResponse "Not found"
// @Router       /api/v1/models/{id}/deactivate [post]
func Deactivate(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		version, err := deps.RegistryService.Deactivate(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}
		types.SendSuccess(c, types.ModelVersionResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Model version deactivated"},
			Model:        version,
		})
	}
}
