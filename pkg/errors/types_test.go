package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHTTPCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", InvalidInput("text is empty"), http.StatusBadRequest},
		{"insufficient data", InsufficientTrainingData(5, 10), http.StatusUnprocessableEntity},
		{"conflict", ConcurrentTrainingConflict("default"), http.StatusConflict},
		{"training failure", TrainingFailure("train", fmt.Errorf("boom")), http.StatusInternalServerError},
		{"model unavailable", ModelUnavailable(fmt.Errorf("no artifact")), http.StatusServiceUnavailable},
		{"not found", NotFound("feedback", 7), http.StatusNotFound},
		{"unauthorized", New(ErrCodeUnauthorized, "token expired"), http.StatusUnauthorized},
		{"forbidden", New(ErrCodeForbidden, "missing permission"), http.StatusForbidden},
		{"plain error", fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPCode(tt.err))
		})
	}
}

func TestIs_WrappedError(t *testing.T) {
	base := InsufficientTrainingData(5, 10)
	wrapped := fmt.Errorf("running cycle: %w", base)

	assert.True(t, Is(wrapped, ErrCodeInsufficientTrainingData))
	assert.False(t, Is(wrapped, ErrCodeTrainingFailure))
	assert.Equal(t, ErrCodeInsufficientTrainingData, GetCode(wrapped))
	assert.Equal(t, ErrCodeInternal, GetCode(fmt.Errorf("plain")))
}

func TestAppError_Error(t *testing.T) {
	err := TrainingFailure("evaluate", fmt.Errorf("empty test set"))
	assert.Contains(t, err.Error(), "TRAINING_FAILURE")
	assert.Contains(t, err.Error(), "empty test set")
	assert.Equal(t, "evaluate", err.Details["stage"])

	plain := New(ErrCodeConflict, "busy")
	assert.Equal(t, "CONFLICT: busy", plain.Error())
}
