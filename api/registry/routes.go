package registry

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// RegisterRoutes registers model registry routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", List(deps))
	router.GET("/:id", Get(deps))
	router.GET("/:id/metrics", GetMetrics(deps))
	router.POST("/:id/promote", Promote(deps))
	router.POST("/:id/deactivate", Deactivate(deps))
}
