package types

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// UserIDHeader carries the caller identity set by the upstream identity layer
const UserIDHeader = "X-User-ID"

// Context keys set by the authentication middleware
const (
	ContextClaims = "claims"
	ContextUserID = "user_id"
)

// Handler utility functions to reduce duplication across handlers

// ParseUintParam extracts and parses a URL parameter as uint
// Returns the parsed value and sends error response if parsing fails
func ParseUintParam(c *gin.Context, paramName string) (uint, bool) {
	paramStr := c.Param(paramName)
	value, err := strconv.ParseUint(paramStr, 10, 32)
	if err != nil {
		SendBadRequest(c, "Invalid "+paramName)
		return 0, false
	}
	return uint(value), true
}

// QueryInt reads an integer query parameter, falling back to def when absent or malformed
func QueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

// QueryBool reads an optional boolean query parameter. A nil result means absent.
// Returns false and sends error response if the value is not a boolean.
func QueryBool(c *gin.Context, key string) (*bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		SendBadRequest(c, "Invalid "+key)
		return nil, false
	}
	return &value, true
}

// UserID returns the authenticated subject when there is one, else the
// X-User-ID header, or "" when neither is present
func UserID(c *gin.Context) string {
	if id := c.GetString(ContextUserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(UserIDHeader))
}

// BindJSONOrError attempts to bind JSON request body to target struct
// Returns false and sends error response if binding fails
func BindJSONOrError(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Status:  StatusError,
			Message: "Invalid request body",
			Error:   string(apperrors.ErrCodeInvalidInput),
			Details: err.Error(),
		})
		return false
	}
	return true
}

// ErrorBody renders err as an ErrorResponse. Errors that are not AppErrors
// are reported as internal without exposing their text.
func ErrorBody(err error) (int, ErrorResponse) {
	appErr, ok := apperrors.As(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{
			Status:  StatusError,
			Message: "Internal server error",
			Error:   string(apperrors.ErrCodeInternal),
		}
	}

	status := appErr.GetHTTPCode()
	resp := ErrorResponse{
		Status:  StatusError,
		Message: appErr.Message,
		Error:   string(appErr.Code),
	}
	if len(appErr.Details) > 0 {
		resp.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError && appErr.Code != apperrors.ErrCodeModelUnavailable {
		resp.Message = "Internal server error"
		resp.Details = nil
	}
	return status, resp
}

// SendError maps an application error to its HTTP status and body
func SendError(c *gin.Context, err error) {
	status, body := ErrorBody(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

// SendBadRequest sends a standardized bad request response
func SendBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeInvalidInput)})
}

// SendNotFound sends a standardized not found response
func SendNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Status: StatusError, Message: message, Error: string(apperrors.ErrCodeNotFound)})
}

// SendSuccess sends a standardized success response with data
func SendSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendCreated sends a standardized created response with data
func SendCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
