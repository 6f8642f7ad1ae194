package training

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// RegisterRoutes registers training run and job routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	runs := router.Group("/runs")
	{
		runs.POST("", CreateRun(deps))
		runs.GET("", ListRuns(deps))
		runs.GET("/:id", GetRun(deps))
		runs.POST("/:id/cancel", CancelRun(deps))
	}

	jobs := router.Group("/jobs")
	{
		jobs.GET("", ListJobs(deps))
		jobs.GET("/:id", GetJob(deps))
		jobs.DELETE("/:id", DeleteJob(deps))
		jobs.POST("/:id/cancel", CancelJob(deps))
		jobs.POST("/:id/retry", RetryJob(deps))
	}
}
