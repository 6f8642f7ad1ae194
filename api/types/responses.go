package types

import (
	"github.com/killallgit/sensitive-data-api/internal/classification"
	"github.com/killallgit/sensitive-data-api/internal/models"
)

// Status constants for API responses
const (
	StatusOK     = "ok"
	StatusError  = "error"
	StatusQueued = "queued"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`            // One of the Status constants above
	Message string `json:"message,omitempty"` // Human-readable message
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`   // Error code/type
	Details interface{} `json:"details,omitempty"` // Additional error details
}

// HealthResponse for health check endpoint
type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   string                 `json:"timestamp"`
	Database    map[string]interface{} `json:"database"`
	Statistical map[string]interface{} `json:"statistical,omitempty"`
}

// ClassifyResponse wraps one classification result
type ClassifyResponse struct {
	BaseResponse
	*classification.Result
	EntitiesByLabel map[string][]models.Entity `json:"entities_by_label"`
}

// BatchItemResponse is one element of a batch classification
type BatchItemResponse struct {
	Index  int                    `json:"index"`
	Result *classification.Result `json:"result,omitempty"`
	Error  *ErrorResponse         `json:"error,omitempty"`
}

// BatchClassifyResponse for the batch endpoint
type BatchClassifyResponse struct {
	BaseResponse
	Items     []BatchItemResponse `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// FeedbackCreatedResponse is returned when feedback is stored
type FeedbackCreatedResponse struct {
	BaseResponse
	FeedbackID uint `json:"feedback_id"`
}

// TrainingRunQueuedResponse is returned when a run is handed to the worker pool
type TrainingRunQueuedResponse struct {
	BaseResponse
	JobID   uint   `json:"job_id"`
	Lineage string `json:"lineage"`
}

// TrainingRunResponse wraps a run
type TrainingRunResponse struct {
	BaseResponse
	Run *models.TrainingRun `json:"run"`
}

// ModelVersionResponse wraps a model version and, when requested, its metrics
type ModelVersionResponse struct {
	BaseResponse
	Model   *models.ModelVersion `json:"model"`
	Metrics []models.ModelMetric `json:"metrics,omitempty"`
}

// JobResponse for async job status
type JobResponse struct {
	BaseResponse
	Job *models.Job `json:"job"`
}
