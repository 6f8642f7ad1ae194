package version

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Build metadata, overridden with -ldflags "-X .../api/version.Version=..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Get handles version requests
// @Summary      Service version
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       / [get]
func Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "Sensitive Data Classifier API",
			"version":     Version,
			"commit":      Commit,
			"build_date":  BuildDate,
			"description": "Detects sensitive entities in text and learns from user feedback",
			"status":      "running",
		})
	}
}
