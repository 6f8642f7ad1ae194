package types

import (
	"context"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/classification"
	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/feedback"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
	"github.com/killallgit/sensitive-data-api/internal/services/registry"
	"github.com/killallgit/sensitive-data-api/internal/services/training"
	"github.com/killallgit/sensitive-data-api/internal/services/trainingdata"
	"github.com/killallgit/sensitive-data-api/internal/services/workers"
)

// Classifier is the classification engine as seen by handlers
type Classifier interface {
	Classify(ctx context.Context, text string, opts classification.ClassifyOptions) (*classification.Result, error)
	ClassifyBatch(ctx context.Context, texts []string, opts classification.ClassifyOptions) ([]classification.BatchItem, error)
	Stats() classification.Stats
}

// TrainingPipeline runs and reports on training cycles
type TrainingPipeline interface {
	RunTrainingCycle(ctx context.Context, cfg training.CycleConfig) (*models.TrainingRun, error)
	Cancel(runID uint) bool
	GetRun(ctx context.Context, id uint) (*models.TrainingRun, error)
	ListRuns(ctx context.Context, filters training.ListFilters) (*training.RunPage, error)
}

var (
	_ Classifier       = (*classification.Engine)(nil)
	_ TrainingPipeline = (*training.Pipeline)(nil)
)

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	DB                  *database.DB
	Classifier          Classifier
	FeedbackService     feedback.Service
	TrainingDataService trainingdata.Service
	RegistryService     registry.Service
	Pipeline            TrainingPipeline
	JobService          jobs.Service
	WorkerPool          *workers.WorkerPool
	// TrainingDefaults seeds runs requested over HTTP
	TrainingDefaults training.CycleConfig
	Log              *zap.Logger
}

// Logger returns the configured logger or a no-op one
func (d *Dependencies) Logger() *zap.Logger {
	if d == nil || d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
