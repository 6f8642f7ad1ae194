package registry

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// ErrVersionNotFound is returned when a model version does not exist
var ErrVersionNotFound = errors.New("model version not found")

// ListFilters narrows List
type ListFilters struct {
	Lineage string
	Active  *bool
	Limit   int
	Offset  int
}

// PromoteOptions describes a manual promotion
type PromoteOptions struct {
	Production bool
	PromotedBy string
}

// ActivationListener is told when the active version of a lineage changes
type ActivationListener func(ctx context.Context, lineage string)

// Repository defines the interface for model version data access
type Repository interface {
	// Create inserts a version using the caller's transaction
	Create(tx *gorm.DB, version *models.ModelVersion) error

	GetByID(ctx context.Context, id uint) (*models.ModelVersion, error)
	GetActive(ctx context.Context, lineage string) (*models.ModelVersion, error)
	List(ctx context.Context, filters ListFilters) ([]models.ModelVersion, int64, error)
	Versions(ctx context.Context, lineage string) ([]string, error)
	Metrics(ctx context.Context, versionID uint) ([]models.ModelMetric, error)

	// Activate makes id the only active version of its lineage
	Activate(ctx context.Context, id uint, production bool, at time.Time) (*models.ModelVersion, error)
	Deactivate(ctx context.Context, id uint) (*models.ModelVersion, error)
}

// Service defines the interface for the model registry
type Service interface {
	Register(tx *gorm.DB, version *models.ModelVersion) error
	List(ctx context.Context, filters ListFilters) (*Page, error)
	Get(ctx context.Context, id uint) (*models.ModelVersion, error)
	GetMetrics(ctx context.Context, id uint) ([]models.ModelMetric, error)
	GetActive(ctx context.Context, lineage string) (*models.ModelVersion, error)
	NextVersionTag(ctx context.Context, lineage string) (string, error)
	ActiveArtifact(ctx context.Context, lineage string) (string, bool, error)

	Promote(ctx context.Context, id uint, opts PromoteOptions) (*models.ModelVersion, error)
	Deactivate(ctx context.Context, id uint) (*models.ModelVersion, error)
	OnActivation(listener ActivationListener)
}
