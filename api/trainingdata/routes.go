package trainingdata

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// RegisterRoutes registers training data routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", List(deps))
	router.POST("", Create(deps))
	router.GET("/stats", GetStats(deps))
	router.GET("/:id", Get(deps))
	router.POST("/:id/verify", Verify(deps))
}
