package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/artifacts"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/ner"
	"github.com/killallgit/sensitive-data-api/internal/services/feedback"
	"github.com/killallgit/sensitive-data-api/internal/services/registry"
	"github.com/killallgit/sensitive-data-api/internal/services/trainingdata"
	"github.com/killallgit/sensitive-data-api/pkg/config"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// CycleConfig configures one training cycle
type CycleConfig struct {
	Lineage         string  `json:"lineage"`
	Iterations      int     `json:"iterations"`
	BatchSize       int     `json:"batch_size"`
	Dropout         float64 `json:"dropout"`
	TestSplit       float64 `json:"test_split"`
	MinSamples      int     `json:"min_samples"`
	Seed            int64   `json:"seed"`
	IncludeFeedback bool    `json:"include_feedback"`
	IncludeDatasets bool    `json:"include_datasets"`
	Limit           int     `json:"limit,omitempty"`

	JobID     *uint  `json:"-"`
	CreatedBy string `json:"-"`
	// Progress receives a 0-100 completion estimate
	Progress func(percent int) `json:"-"`
}

// CycleConfigFromConfig builds the default cycle from application config
func CycleConfigFromConfig(c config.TrainingConfig) CycleConfig {
	return CycleConfig{
		Lineage:         c.Lineage,
		Iterations:      c.Iterations,
		BatchSize:       c.BatchSize,
		Dropout:         c.Dropout,
		TestSplit:       c.TestSplit,
		MinSamples:      c.MinSamples,
		Seed:            c.Seed,
		IncludeFeedback: c.IncludeFeedback,
		IncludeDatasets: c.IncludeDatasets,
	}
}

// Validate checks the cycle parameters
func (c CycleConfig) Validate() error {
	switch {
	case c.Lineage == "":
		return apperrors.InvalidInput("lineage is required")
	case c.Iterations < 1:
		return apperrors.InvalidInput("iterations must be at least 1")
	case c.BatchSize < 1:
		return apperrors.InvalidInput("batch_size must be at least 1")
	case c.Dropout < 0 || c.Dropout >= 1:
		return apperrors.InvalidInput("dropout must be in [0, 1)")
	case c.TestSplit < 0 || c.TestSplit >= 1:
		return apperrors.InvalidInput("test_split must be in [0, 1)")
	case c.MinSamples < 1:
		return apperrors.InvalidInput("min_samples must be at least 1")
	case !c.IncludeFeedback && !c.IncludeDatasets:
		return apperrors.InvalidInput("at least one of include_feedback and include_datasets is required")
	}
	return nil
}

// ModelFactory returns the model a cycle fine-tunes
type ModelFactory func(ctx context.Context, lineage string) (Trainable, error)

// PipelineDeps wires a Pipeline
type PipelineDeps struct {
	DB        *gorm.DB
	Runs      Repository
	Trainer   *Trainer
	Registry  registry.Service
	Artifacts artifacts.Store
	Locker    Locker
	// NewModel defaults to the active tagger of the lineage
	NewModel ModelFactory
	Log      *zap.Logger
}

// Pipeline runs gather, train, evaluate and register cycles. A cycle never
// activates the version it registers.
type Pipeline struct {
	db        *gorm.DB
	runs      Repository
	trainer   *Trainer
	registry  registry.Service
	artifacts artifacts.Store
	locker    Locker
	newModel  ModelFactory
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	cancels map[uint]context.CancelFunc
}

// NewPipeline creates a pipeline
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		db:        deps.DB,
		runs:      deps.Runs,
		trainer:   deps.Trainer,
		registry:  deps.Registry,
		artifacts: deps.Artifacts,
		locker:    deps.Locker,
		newModel:  deps.NewModel,
		log:       deps.Log,
		now:       time.Now,
		cancels:   make(map[uint]context.CancelFunc),
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.locker == nil {
		p.locker = NewLocalLocker()
	}
	if p.runs == nil {
		p.runs = NewRepository(deps.DB)
	}
	if p.newModel == nil {
		p.newModel = func(ctx context.Context, lineage string) (Trainable, error) {
			return ner.LoadActiveTagger(ctx, deps.Registry, deps.Artifacts, lineage)
		}
	}
	return p
}

// RunTrainingCycle runs one cycle to a terminal state and returns the run.
// Every failure after the run is created is recorded on it and also returned.
func (p *Pipeline) RunTrainingCycle(ctx context.Context, cfg CycleConfig) (*models.TrainingRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := p.log.With(zap.String("lineage", cfg.Lineage))

	run := &models.TrainingRun{
		UUID:       uuid.New().String(),
		Lineage:    cfg.Lineage,
		Status:     models.TrainingRunQueued,
		Iterations: cfg.Iterations,
		BatchSize:  cfg.BatchSize,
		Dropout:    cfg.Dropout,
		TestSplit:  cfg.TestSplit,
		MinSamples: cfg.MinSamples,
		Seed:       cfg.Seed,
		JobID:      cfg.JobID,
		CreatedBy:  cfg.CreatedBy,
	}
	if err := p.runs.Create(ctx, run); err != nil {
		return nil, apperrors.DatabaseError("create training run", err)
	}
	log = log.With(zap.Uint("run_id", run.ID))
	log.Info("training run queued")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.track(run.ID, cancel)
	defer p.untrack(run.ID)

	unlock, acquired, err := p.locker.TryLock(runCtx, cfg.Lineage)
	if err != nil {
		return p.fail(ctx, run, apperrors.Wrap(err, apperrors.ErrCodeInternal, "acquire training lock"), nil)
	}
	if !acquired {
		return p.fail(ctx, run, apperrors.ConcurrentTrainingConflict(cfg.Lineage), nil)
	}
	defer unlock()

	running, err := p.runs.CountRunning(runCtx, cfg.Lineage)
	if err != nil {
		return p.fail(ctx, run, apperrors.DatabaseError("check running training runs", err), nil)
	}
	if running > 0 {
		return p.fail(ctx, run, apperrors.ConcurrentTrainingConflict(cfg.Lineage), nil)
	}

	collection, err := p.trainer.Prepare(runCtx, trainingdata.CollectOptions{
		IncludeFeedback: cfg.IncludeFeedback,
		IncludeDatasets: cfg.IncludeDatasets,
		Limit:           cfg.Limit,
	})
	if err != nil {
		return p.fail(ctx, run, err, nil)
	}
	collected := map[string]interface{}{"invalid_spans": collection.InvalidSpans}
	if collection.Len() < cfg.MinSamples {
		return p.fail(ctx, run, apperrors.InsufficientTrainingData(collection.Len(), cfg.MinSamples), collected)
	}

	started := p.now()
	collected["started_at"] = started
	if err := p.runs.Transition(runCtx, run.ID, models.TrainingRunRunning, collected); err != nil {
		return p.fail(ctx, run, apperrors.TrainingFailure("start", err), nil)
	}
	log.Info("training run started", zap.Int("examples", collection.Len()), zap.Int("invalid_spans", collection.InvalidSpans))
	if err := p.trainer.Consume(runCtx, collection); err != nil {
		log.Warn("failed to record training example usage", zap.Error(err))
	}
	p.progress(cfg, 5)

	version, err := p.trainAndRegister(runCtx, run, cfg, collection, started)
	if err != nil {
		return p.fail(ctx, run, err, nil)
	}

	runsTotal.WithLabelValues(string(models.TrainingRunCompleted), "").Inc()
	runDuration.Observe(p.now().Sub(started).Seconds())
	lastF1.WithLabelValues(cfg.Lineage).Set(version.F1)
	log.Info("training run completed",
		zap.String("version", version.Version),
		zap.Float64("precision", version.Precision),
		zap.Float64("recall", version.Recall),
		zap.Float64("f1", version.F1))
	p.progress(cfg, 100)

	return p.reload(ctx, run)
}

// trainAndRegister covers the running phase: split, fit, score, save the
// artifact and record everything in one transaction
func (p *Pipeline) trainAndRegister(ctx context.Context, run *models.TrainingRun, cfg CycleConfig, collection *trainingdata.Collection, started time.Time) (*models.ModelVersion, error) {
	train, test := Split(collection.Examples, cfg.TestSplit, cfg.Seed)

	model, err := p.newModel(ctx, cfg.Lineage)
	if err != nil {
		return nil, apperrors.TrainingFailure("load base model", err)
	}

	result, err := p.trainer.Train(ctx, model, train, TrainParams{
		Iterations: cfg.Iterations,
		BatchSize:  cfg.BatchSize,
		Dropout:    cfg.Dropout,
		Seed:       cfg.Seed,
		Progress: func(iteration, total int, loss float64) {
			p.progress(cfg, 5+80*iteration/total)
		},
	})
	if err != nil {
		return nil, trainingError("train", err)
	}

	eval, err := p.trainer.Evaluate(ctx, model, test)
	if err != nil {
		return nil, trainingError("evaluate", err)
	}
	p.progress(cfg, 90)

	// The last chance to honour a cancel before anything is persisted
	if err := ctx.Err(); err != nil {
		return nil, trainingError("register", err)
	}

	tag, err := p.registry.NextVersionTag(ctx, cfg.Lineage)
	if err != nil {
		return nil, apperrors.TrainingFailure("register", err)
	}
	// No active version means no parent
	parent, err := p.registry.GetActive(ctx, cfg.Lineage)
	if err != nil && !apperrors.Is(err, apperrors.ErrCodeNotFound) {
		return nil, apperrors.TrainingFailure("register", err)
	}
	data, err := model.Marshal()
	if err != nil {
		return nil, apperrors.TrainingFailure("serialize", err)
	}
	key := artifacts.ModelKey(cfg.Lineage, tag)
	if err := p.artifacts.Put(ctx, key, data); err != nil {
		return nil, apperrors.TrainingFailure("save artifact", err)
	}

	completed := p.now()
	version := &models.ModelVersion{
		Lineage:          cfg.Lineage,
		Version:          tag,
		Precision:        eval.Precision,
		Recall:           eval.Recall,
		F1:               eval.F1,
		ArtifactLocation: key,
		TrainingRunID:    run.ID,
		TrainingSamples:  len(train),
		TrainingDuration: completed.Sub(started).Seconds(),
		TrainingParams: datatypes.JSONMap{
			"iterations": cfg.Iterations,
			"batch_size": cfg.BatchSize,
			"dropout":    cfg.Dropout,
			"test_split": cfg.TestSplit,
			"seed":       cfg.Seed,
		},
		ClassificationTypes: datatypes.JSONSlice[string](Labels(collection.Examples)),
		Description:         fmt.Sprintf("trained on %d examples, evaluated on %d", len(train), len(test)),
		CreatedBy:           cfg.CreatedBy,
	}
	if parent != nil {
		version.ParentID = &parent.ID
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.registry.Register(tx, version); err != nil {
			return err
		}
		if _, err := feedback.MarkIncorporated(tx, collection.FeedbackIDs, run.ID, completed); err != nil {
			return err
		}
		if err := tx.Create(metricRows(version.ID, run.ID, eval, result, completed)).Error; err != nil {
			return fmt.Errorf("recording model metrics: %w", err)
		}
		return p.runs.WithTx(tx).Transition(ctx, run.ID, models.TrainingRunCompleted, map[string]interface{}{
			"precision":        eval.Precision,
			"recall":           eval.Recall,
			"f1":               eval.F1,
			"train_samples":    len(train),
			"test_samples":     len(test),
			"final_loss":       result.FinalLoss,
			"avg_loss":         result.AvgLoss,
			"loss_curve":       datatypes.JSONSlice[float64](result.PerIterationLoss),
			"completed_at":     completed,
			"model_version_id": version.ID,
		})
	})
	if err != nil {
		// Free the version-scoped key so the tag can be reused
		if delErr := p.artifacts.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			p.log.Warn("failed to remove orphaned artifact", zap.String("key", key), zap.Error(delErr))
		}
		return nil, apperrors.TrainingFailure("register", err)
	}
	return version, nil
}

func metricRows(versionID, runID uint, eval *Evaluation, result *TrainResult, at time.Time) []models.ModelMetric {
	rows := []models.ModelMetric{
		{Name: "precision", Value: eval.Precision},
		{Name: "recall", Value: eval.Recall},
		{Name: "f1", Value: eval.F1},
		{Name: "final_loss", Value: result.FinalLoss},
		{Name: "avg_loss", Value: result.AvgLoss},
	}
	for _, label := range sortedLabels(eval.PerLabel) {
		s := eval.PerLabel[label]
		rows = append(rows,
			models.ModelMetric{Name: "precision", Value: s.Precision, EntityType: label},
			models.ModelMetric{Name: "recall", Value: s.Recall, EntityType: label},
			models.ModelMetric{Name: "f1", Value: s.F1, EntityType: label},
		)
	}
	for i := range rows {
		rows[i].ModelVersionID = versionID
		rows[i].TrainingRunID = runID
		rows[i].RecordedAt = at
	}
	return rows
}

// trainingError tells cancellation apart from genuine failures
func trainingError(stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTrainingCancelled, "training run cancelled")
	}
	return apperrors.TrainingFailure(stage, err)
}

// fail records err on the run and returns it. Runs already terminal are left as they are.
func (p *Pipeline) fail(ctx context.Context, run *models.TrainingRun, err error, fields map[string]interface{}) (*models.TrainingRun, error) {
	code := apperrors.GetCode(err)
	updates := map[string]interface{}{
		"error":        err.Error(),
		"error_code":   string(code),
		"completed_at": p.now(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	dbCtx := context.WithoutCancel(ctx)
	if terr := p.runs.Transition(dbCtx, run.ID, models.TrainingRunFailed, updates); terr != nil {
		p.log.Error("failed to record training failure", zap.Uint("run_id", run.ID), zap.Error(terr))
	}
	runsTotal.WithLabelValues(string(models.TrainingRunFailed), string(code)).Inc()
	p.log.Warn("training run failed",
		zap.Uint("run_id", run.ID),
		zap.String("lineage", run.Lineage),
		zap.String("code", string(code)),
		zap.Error(err))

	if latest, gerr := p.runs.GetByID(dbCtx, run.ID); gerr == nil {
		run = latest
	}
	return run, err
}

func (p *Pipeline) reload(ctx context.Context, run *models.TrainingRun) (*models.TrainingRun, error) {
	latest, err := p.runs.GetByID(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return run, nil
	}
	return latest, nil
}

func (p *Pipeline) progress(cfg CycleConfig, percent int) {
	if cfg.Progress != nil {
		cfg.Progress(percent)
	}
}

func (p *Pipeline) track(id uint, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[id] = cancel
}

func (p *Pipeline) tracked(id uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cancels[id]
	return ok
}

func (p *Pipeline) untrack(id uint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, id)
}

// Cancel asks an in-progress run to stop at its next checkpoint. It reports
// whether this process was running it.
func (p *Pipeline) Cancel(runID uint) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[runID]
	p.mu.Unlock()
	if ok {
		cancel()
		p.log.Info("training run cancellation requested", zap.Uint("run_id", runID))
	}
	return ok
}

// RecoverInterrupted fails the queued and running runs no cycle in this
// process owns, such as those left behind by a crash. A lineage whose lock
// is held elsewhere is skipped since its holder may still be working. The
// runs that were failed are returned.
func (p *Pipeline) RecoverInterrupted(ctx context.Context) ([]models.TrainingRun, error) {
	unfinished, err := p.runs.ListUnfinished(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("list unfinished training runs", err)
	}

	var lineages []string
	byLineage := make(map[string][]models.TrainingRun)
	for _, run := range unfinished {
		if p.tracked(run.ID) {
			continue
		}
		if _, ok := byLineage[run.Lineage]; !ok {
			lineages = append(lineages, run.Lineage)
		}
		byLineage[run.Lineage] = append(byLineage[run.Lineage], run)
	}

	var recovered []models.TrainingRun
	for _, lineage := range lineages {
		runs, err := p.recoverLineage(ctx, lineage, byLineage[lineage])
		recovered = append(recovered, runs...)
		if err != nil {
			return recovered, err
		}
	}
	return recovered, nil
}

func (p *Pipeline) recoverLineage(ctx context.Context, lineage string, runs []models.TrainingRun) ([]models.TrainingRun, error) {
	log := p.log.With(zap.String("lineage", lineage))

	unlock, acquired, err := p.locker.TryLock(ctx, lineage)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "acquire training lock")
	}
	if !acquired {
		log.Info("training lock held elsewhere, leaving unfinished runs alone", zap.Int("runs", len(runs)))
		return nil, nil
	}
	defer unlock()

	interrupted := apperrors.TrainingInterrupted()
	var recovered []models.TrainingRun
	for _, run := range runs {
		err := p.runs.Transition(ctx, run.ID, models.TrainingRunFailed, map[string]interface{}{
			"error":        interrupted.Error(),
			"error_code":   string(interrupted.Code),
			"completed_at": p.now(),
		})
		if errors.Is(err, ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return recovered, apperrors.DatabaseError("fail interrupted training run", err)
		}
		runsTotal.WithLabelValues(string(models.TrainingRunFailed), string(interrupted.Code)).Inc()
		log.Warn("interrupted training run failed",
			zap.Uint("run_id", run.ID),
			zap.String("was", string(run.Status)))

		latest, err := p.reload(ctx, &run)
		if err != nil {
			return recovered, err
		}
		recovered = append(recovered, *latest)
	}
	return recovered, nil
}

// GetRun returns one training run
func (p *Pipeline) GetRun(ctx context.Context, id uint) (*models.TrainingRun, error) {
	run, err := p.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil, apperrors.NotFound("training run", id)
		}
		return nil, apperrors.DatabaseError("get training run", err)
	}
	return run, nil
}

// RunPage is one page of training runs
type RunPage struct {
	Items  []models.TrainingRun `json:"items"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListRuns returns training runs, newest first
func (p *Pipeline) ListRuns(ctx context.Context, filters ListFilters) (*RunPage, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	if filters.Limit > 500 {
		filters.Limit = 500
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	runs, total, err := p.runs.List(ctx, filters)
	if err != nil {
		return nil, apperrors.DatabaseError("list training runs", err)
	}
	if runs == nil {
		runs = []models.TrainingRun{}
	}
	return &RunPage{Items: runs, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}
