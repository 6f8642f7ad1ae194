package classify

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// GetStats reports engine configuration and model state
// @Summary      Classifier statistics
// @Description  Detector toggles, statistical model state, pattern inventory and confidence policy
// @Tags         classify
// @Produce      json
// @Success      200 {object} classification.Stats
// @Router       /api/v1/classify/stats [get]
func GetStats(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Classifier.Stats())
	}
}
