package training

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// ErrRunNotFound is returned when a training run does not exist
var ErrRunNotFound = errors.New("training run not found")

// ErrInvalidTransition is returned when a run is not in a state that allows the change
var ErrInvalidTransition = errors.New("invalid training run transition")

// ListFilters narrows ListRuns
type ListFilters struct {
	Lineage string
	Status  models.TrainingRunStatus
	Limit   int
	Offset  int
}

// Repository defines the interface for training run data access
type Repository interface {
	Create(ctx context.Context, run *models.TrainingRun) error
	GetByID(ctx context.Context, id uint) (*models.TrainingRun, error)
	List(ctx context.Context, filters ListFilters) ([]models.TrainingRun, int64, error)
	CountRunning(ctx context.Context, lineage string) (int64, error)
	// ListUnfinished returns queued and running runs, oldest first
	ListUnfinished(ctx context.Context) ([]models.TrainingRun, error)

	// Transition moves the run to status with the given column updates, only
	// if its current status allows it
	Transition(ctx context.Context, id uint, status models.TrainingRunStatus, fields map[string]interface{}) error

	// WithTx returns a repository bound to tx
	WithTx(tx *gorm.DB) Repository
}

// RepositoryImpl implements the Repository interface
type RepositoryImpl struct {
	db *gorm.DB
}

// NewRepository creates a new training run repository
func NewRepository(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// WithTx returns a repository bound to tx
func (r *RepositoryImpl) WithTx(tx *gorm.DB) Repository {
	return &RepositoryImpl{db: tx}
}

// Create inserts a training run
func (r *RepositoryImpl) Create(ctx context.Context, run *models.TrainingRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating training run: %w", err)
	}
	return nil
}

// GetByID retrieves a training run by its ID
func (r *RepositoryImpl) GetByID(ctx context.Context, id uint) (*models.TrainingRun, error) {
	var run models.TrainingRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("getting training run: %w", err)
	}
	return &run, nil
}

// List returns one page of runs, newest first
func (r *RepositoryImpl) List(ctx context.Context, filters ListFilters) ([]models.TrainingRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TrainingRun{})
	if filters.Lineage != "" {
		query = query.Where("lineage = ?", filters.Lineage)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting training runs: %w", err)
	}

	var runs []models.TrainingRun
	if err := query.Order("created_at DESC, id DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing training runs: %w", err)
	}
	return runs, total, nil
}

// CountRunning counts runs of the lineage currently in the running state
func (r *RepositoryImpl) CountRunning(ctx context.Context, lineage string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.TrainingRun{}).
		Where("lineage = ? AND status = ?", lineage, models.TrainingRunRunning).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting running training runs: %w", err)
	}
	return n, nil
}

func (r *RepositoryImpl) ListUnfinished(ctx context.Context) ([]models.TrainingRun, error) {
	var runs []models.TrainingRun
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []models.TrainingRunStatus{models.TrainingRunQueued, models.TrainingRunRunning}).
		Order("id ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing unfinished training runs: %w", err)
	}
	return runs, nil
}

// Transition performs a conditional status update
func (r *RepositoryImpl) Transition(ctx context.Context, id uint, status models.TrainingRunStatus, fields map[string]interface{}) error {
	var from []models.TrainingRunStatus
	for _, s := range []models.TrainingRunStatus{models.TrainingRunQueued, models.TrainingRunRunning} {
		if s.CanTransition(status) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing may move to %s", ErrInvalidTransition, status)
	}

	updates := map[string]interface{}{"status": status}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&models.TrainingRun{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating training run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: run %d to %s", ErrInvalidTransition, id, status)
	}
	return nil
}
