package feedback

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// RegisterRoutes registers feedback routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("", Create(deps))
	router.GET("", List(deps))
	router.GET("/stats", GetStats(deps))
	router.GET("/:id", Get(deps))
}
