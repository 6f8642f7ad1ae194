package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// ErrFeedbackNotFound is returned when a feedback row does not exist
var ErrFeedbackNotFound = errors.New("feedback not found")

// ListFilters narrows ListFeedback; nil pointers match everything
type ListFilters struct {
	IsCorrect    *bool
	Incorporated *bool
	UserID       string
	Since        *time.Time
	Limit        int
	Offset       int
}

// Repository defines the interface for feedback data access
type Repository interface {
	// Create stores the feedback and, when example is non-nil, the training
	// example derived from it. Both rows are written or neither is.
	Create(ctx context.Context, fb *models.Feedback, example *models.TrainingExample) error

	GetByID(ctx context.Context, id uint) (*models.Feedback, error)
	List(ctx context.Context, filters ListFilters) ([]models.Feedback, int64, error)

	// Since returns the rows created at or after since, oldest first
	Since(ctx context.Context, since time.Time) ([]models.Feedback, error)
	CountUnincorporated(ctx context.Context) (int64, error)
}

// Service defines the interface for feedback business logic
type Service interface {
	SubmitFeedback(ctx context.Context, req SubmitRequest) (uint, error)
	GetFeedback(ctx context.Context, id uint) (*models.Feedback, error)
	ListFeedback(ctx context.Context, filters ListFilters) (*Page, error)
	GetStats(ctx context.Context, window time.Duration) (*Stats, error)
}
