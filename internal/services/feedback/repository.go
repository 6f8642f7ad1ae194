package feedback

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

// NewRepository creates a new feedback repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// Create writes the feedback and its derived example in one transaction
func (r *RepositoryImpl) Create(ctx context.Context, fb *models.Feedback, example *models.TrainingExample) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fb).Error; err != nil {
			return fmt.Errorf("creating feedback: %w", err)
		}
		if example == nil {
			return nil
		}
		example.FeedbackID = &fb.ID
		if err := tx.Create(example).Error; err != nil {
			return fmt.Errorf("creating training example from feedback: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a feedback row by its ID
func (r *RepositoryImpl) GetByID(ctx context.Context, id uint) (*models.Feedback, error) {
	var fb models.Feedback
	if err := r.db.WithContext(ctx).First(&fb, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, fmt.Errorf("getting feedback: %w", err)
	}
	return &fb, nil
}

// List returns one page of feedback, newest first, plus the unpaged total
func (r *RepositoryImpl) List(ctx context.Context, filters ListFilters) ([]models.Feedback, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Feedback{})
	if filters.IsCorrect != nil {
		query = query.Where("is_correct = ?", *filters.IsCorrect)
	}
	if filters.Incorporated != nil {
		query = query.Where("incorporated = ?", *filters.Incorporated)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting feedback: %w", err)
	}

	var rows []models.Feedback
	if err := query.Order("created_at DESC, id DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("listing feedback: %w", err)
	}
	return rows, total, nil
}

// Since returns feedback created at or after the given time
func (r *RepositoryImpl) Since(ctx context.Context, since time.Time) ([]models.Feedback, error) {
	var rows []models.Feedback
	if err := r.db.WithContext(ctx).
		Select("id", "created_at", "is_correct", "user_id", "incorporated").
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("getting feedback window: %w", err)
	}
	return rows, nil
}

// CountUnincorporated counts feedback no training run has consumed yet
func (r *RepositoryImpl) CountUnincorporated(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Feedback{}).
		Where("incorporated = ?", false).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting unincorporated feedback: %w", err)
	}
	return n, nil
}

// MarkIncorporated flags the consumed rows inside the caller's transaction.
// Rows already incorporated by another run are left alone.
func MarkIncorporated(tx *gorm.DB, ids []uint, runID uint, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := tx.Model(&models.Feedback{}).
		Where("id IN ? AND incorporated = ?", ids, false).
		Updates(map[string]interface{}{
			"incorporated":    true,
			"training_run_id": runID,
			"processed_at":    at,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("marking feedback incorporated: %w", result.Error)
	}
	return result.RowsAffected, nil
}
