package trainingdata

import (
	"context"
	"errors"
	"time"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// ErrExampleNotFound is returned when a training example does not exist
var ErrExampleNotFound = errors.New("training example not found")

// ListFilters narrows ListExamples
type ListFilters struct {
	Source             models.TrainingExampleSource
	Verified           *bool
	ClassificationType string
	Limit              int
	Offset             int
}

// SourceCount is the number of examples from one source
type SourceCount struct {
	Source   models.TrainingExampleSource `json:"source"`
	Total    int64                        `json:"total"`
	Verified int64                        `json:"verified"`
}

// Repository defines the interface for training example data access
type Repository interface {
	Create(ctx context.Context, example *models.TrainingExample) error
	GetByID(ctx context.Context, id uint) (*models.TrainingExample, error)
	List(ctx context.Context, filters ListFilters) ([]models.TrainingExample, int64, error)
	MarkVerified(ctx context.Context, id uint, verifiedBy string, at time.Time) error

	// Eligible returns examples a training run may consume, oldest first.
	// Feedback derived examples qualify while their feedback is unincorporated;
	// manual and imported examples qualify once verified.
	Eligible(ctx context.Context, includeFeedback, includeDatasets bool, limit int) ([]models.TrainingExample, error)
	MarkUsed(ctx context.Context, ids []uint, at time.Time) error

	CountBySource(ctx context.Context) ([]SourceCount, error)
}

// Service defines the interface for training data business logic
type Service interface {
	AddExample(ctx context.Context, req AddRequest) (*models.TrainingExample, error)
	GetExample(ctx context.Context, id uint) (*models.TrainingExample, error)
	ListExamples(ctx context.Context, filters ListFilters) (*Page, error)
	VerifyExample(ctx context.Context, id uint, verifiedBy string) (*models.TrainingExample, error)
	GetStats(ctx context.Context) (*Stats, error)

	// Collect gathers labeled examples for a training run
	Collect(ctx context.Context, opts CollectOptions) (*Collection, error)
	// RecordUsage counts one more training run against each example
	RecordUsage(ctx context.Context, ids []uint) error
}
