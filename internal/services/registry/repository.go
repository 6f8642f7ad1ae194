package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// RepositoryImpl implements the Repository interface
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new model version repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// Create inserts a model version inside tx
func (r *RepositoryImpl) Create(tx *gorm.DB, version *models.ModelVersion) error {
	if err := tx.Create(version).Error; err != nil {
		return fmt.Errorf("creating model version: %w", err)
	}
	return nil
}

// GetByID retrieves a model version by its ID
func (r *RepositoryImpl) GetByID(ctx context.Context, id uint) (*models.ModelVersion, error) {
	var version models.ModelVersion
	if err := r.db.WithContext(ctx).First(&version, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("getting model version: %w", err)
	}
	return &version, nil
}

// GetActive returns the active version of a lineage
func (r *RepositoryImpl) GetActive(ctx context.Context, lineage string) (*models.ModelVersion, error) {
	var version models.ModelVersion
	if err := r.db.WithContext(ctx).
		Where("lineage = ? AND active = ?", lineage, true).
		Order("deployed_at DESC, id DESC").
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("getting active model version: %w", err)
	}
	return &version, nil
}

// List returns one page of versions, newest first
func (r *RepositoryImpl) List(ctx context.Context, filters ListFilters) ([]models.ModelVersion, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ModelVersion{})
	if filters.Lineage != "" {
		query = query.Where("lineage = ?", filters.Lineage)
	}
	if filters.Active != nil {
		query = query.Where("active = ?", *filters.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting model versions: %w", err)
	}

	var versions []models.ModelVersion
	if err := query.Order("created_at DESC, id DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&versions).Error; err != nil {
		return nil, 0, fmt.Errorf("listing model versions: %w", err)
	}
	return versions, total, nil
}

// Versions returns every version tag recorded for a lineage
func (r *RepositoryImpl) Versions(ctx context.Context, lineage string) ([]string, error) {
	var tags []string
	if err := r.db.WithContext(ctx).Unscoped().Model(&models.ModelVersion{}).
		Where("lineage = ?", lineage).
		Pluck("version", &tags).Error; err != nil {
		return nil, fmt.Errorf("listing version tags: %w", err)
	}
	return tags, nil
}

// Metrics returns the metric points recorded for a version
func (r *RepositoryImpl) Metrics(ctx context.Context, versionID uint) ([]models.ModelMetric, error) {
	var metrics []models.ModelMetric
	if err := r.db.WithContext(ctx).
		Where("model_version_id = ?", versionID).
		Order("name, entity_type").
		Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("getting model metrics: %w", err)
	}
	return metrics, nil
}

// Activate clears the flags of every other version of the lineage and sets
// them on id, all in one transaction
func (r *RepositoryImpl) Activate(ctx context.Context, id uint, production bool, at time.Time) (*models.ModelVersion, error) {
	var version models.ModelVersion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&version, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVersionNotFound
			}
			return fmt.Errorf("getting model version: %w", err)
		}

		cleared := map[string]interface{}{"active": false}
		if production {
			cleared["production"] = false
		}
		if err := tx.Model(&models.ModelVersion{}).
			Where("lineage = ? AND id <> ?", version.Lineage, version.ID).
			Updates(cleared).Error; err != nil {
			return fmt.Errorf("deactivating previous versions: %w", err)
		}

		updates := map[string]interface{}{"active": true, "deployed_at": at}
		if production {
			updates["production"] = true
		}
		if err := tx.Model(&version).Updates(updates).Error; err != nil {
			return fmt.Errorf("activating model version: %w", err)
		}
		return tx.First(&version, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// Deactivate clears both flags on a version
func (r *RepositoryImpl) Deactivate(ctx context.Context, id uint) (*models.ModelVersion, error) {
	var version models.ModelVersion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&version, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVersionNotFound
			}
			return fmt.Errorf("getting model version: %w", err)
		}
		if err := tx.Model(&version).Updates(map[string]interface{}{
			"active":     false,
			"production": false,
		}).Error; err != nil {
			return fmt.Errorf("deactivating model version: %w", err)
		}
		return tx.First(&version, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}
