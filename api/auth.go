package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/services/auth"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// TokenValidator verifies bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

func abortWith(c *gin.Context, code apperrors.ErrorCode, message string) {
	status := http.StatusUnauthorized
	if code == apperrors.ErrCodeForbidden {
		status = http.StatusForbidden
	}
	c.AbortWithStatusJSON(status, types.ErrorResponse{
		Status:  types.StatusError,
		Message: message,
		Error:   string(code),
	})
}

// Authenticate requires a valid bearer token and stores its claims in the context
func Authenticate(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWith(c, apperrors.ErrCodeUnauthorized, "Authorization header required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abortWith(c, apperrors.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := v.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				abortWith(c, apperrors.ErrCodeForbidden, "Access denied - insufficient permissions")
			} else {
				abortWith(c, apperrors.ErrCodeUnauthorized, "Invalid or expired token")
			}
			return
		}

		c.Set(types.ContextClaims, claims)
		c.Set(types.ContextUserID, claims.Sub)
		c.Next()
	}
}

// RequirePermission rejects callers whose claims do not grant permission
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(types.ContextClaims)
		claims, ok := value.(*auth.Claims)
		if !exists || !ok {
			abortWith(c, apperrors.ErrCodeUnauthorized, "Authentication required")
			return
		}
		if !claims.Allows(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Insufficient permissions",
				Error:   string(apperrors.ErrCodeForbidden),
				Details: "requires " + permission,
			})
			return
		}
		c.Next()
	}
}
