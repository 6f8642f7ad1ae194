package classify

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// RegisterRoutes registers classification routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("", Post(deps))
	router.POST("/batch", PostBatch(deps))
	router.GET("/stats", GetStats(deps))
}
