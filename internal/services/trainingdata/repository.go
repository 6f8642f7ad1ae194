package trainingdata

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

// NewRepository creates a new training example repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// Create inserts a training example
func (r *RepositoryImpl) Create(ctx context.Context, example *models.TrainingExample) error {
	if err := r.db.WithContext(ctx).Create(example).Error; err != nil {
		return fmt.Errorf("creating training example: %w", err)
	}
	return nil
}

// GetByID retrieves a training example by its ID
func (r *RepositoryImpl) GetByID(ctx context.Context, id uint) (*models.TrainingExample, error) {
	var example models.TrainingExample
	if err := r.db.WithContext(ctx).First(&example, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExampleNotFound
		}
		return nil, fmt.Errorf("getting training example: %w", err)
	}
	return &example, nil
}

// List returns one page of examples, newest first, plus the unpaged total
func (r *RepositoryImpl) List(ctx context.Context, filters ListFilters) ([]models.TrainingExample, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TrainingExample{})
	if filters.Source != "" {
		query = query.Where("source = ?", filters.Source)
	}
	if filters.Verified != nil {
		query = query.Where("verified = ?", *filters.Verified)
	}
	if filters.ClassificationType != "" {
		query = query.Where("classification_type = ?", filters.ClassificationType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting training examples: %w", err)
	}

	var examples []models.TrainingExample
	if err := query.Order("created_at DESC, id DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&examples).Error; err != nil {
		return nil, 0, fmt.Errorf("listing training examples: %w", err)
	}
	return examples, total, nil
}

// MarkVerified records who verified an example
func (r *RepositoryImpl) MarkVerified(ctx context.Context, id uint, verifiedBy string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.TrainingExample{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_by": verifiedBy,
			"verified_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("verifying training example: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrExampleNotFound
	}
	return nil
}

// Eligible returns the examples a training run may consume
func (r *RepositoryImpl) Eligible(ctx context.Context, includeFeedback, includeDatasets bool, limit int) ([]models.TrainingExample, error) {
	if !includeFeedback && !includeDatasets {
		return nil, nil
	}

	db := r.db.WithContext(ctx)
	fromFeedback := db.Where(
		"training_examples.source = ? AND training_examples.feedback_id IN (?)",
		models.ExampleSourceUserFeedback,
		db.Model(&models.Feedback{}).Select("id").Where("incorporated = ?", false),
	)
	fromDatasets := db.Where(
		"training_examples.source IN ? AND training_examples.verified = ?",
		[]models.TrainingExampleSource{models.ExampleSourceManual, models.ExampleSourceImported},
		true,
	)

	query := db.Model(&models.TrainingExample{})
	switch {
	case includeFeedback && includeDatasets:
		query = query.Where(fromFeedback).Or(fromDatasets)
	case includeFeedback:
		query = query.Where(fromFeedback)
	default:
		query = query.Where(fromDatasets)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var examples []models.TrainingExample
	if err := query.Order("training_examples.id ASC").Find(&examples).Error; err != nil {
		return nil, fmt.Errorf("collecting training examples: %w", err)
	}
	return examples, nil
}

// MarkUsed bumps usage_count and last_used_at for consumed examples
func (r *RepositoryImpl) MarkUsed(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.TrainingExample{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_used_at": at,
		}).Error; err != nil {
		return fmt.Errorf("marking training examples used: %w", err)
	}
	return nil
}

// CountBySource groups example counts by source
func (r *RepositoryImpl) CountBySource(ctx context.Context) ([]SourceCount, error) {
	var counts []SourceCount
	if err := r.db.WithContext(ctx).Model(&models.TrainingExample{}).
		Select("source, COUNT(*) AS total, SUM(CASE WHEN verified THEN 1 ELSE 0 END) AS verified").
		Group("source").
		Order("source").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("counting training examples: %w", err)
	}
	return counts, nil
}
