package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/artifacts"
	"github.com/killallgit/sensitive-data-api/internal/classification"
	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/ner"
	"github.com/killallgit/sensitive-data-api/internal/services/feedback"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
	"github.com/killallgit/sensitive-data-api/internal/services/registry"
	"github.com/killallgit/sensitive-data-api/internal/services/training"
	"github.com/killallgit/sensitive-data-api/internal/services/trainingdata"
	"github.com/killallgit/sensitive-data-api/internal/services/workers"
	"github.com/killallgit/sensitive-data-api/pkg/config"
)

// application holds the wired services shared by serve and train
type application struct {
	cfg *config.Config
	log *zap.Logger

	db          *database.DB
	redis       *redis.Client
	artifacts   artifacts.Store
	engine      *classification.Engine
	feedback    feedback.Service
	data        trainingdata.Service
	registry    *registry.ServiceImpl
	pipeline    *training.Pipeline
	jobs        jobs.Service
	cycleConfig training.CycleConfig
}

func newApplication(ctx context.Context, cfg *config.Config, log *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, log: log, cycleConfig: training.CycleConfigFromConfig(cfg.Training)}

	db, err := database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	if err := db.Migrate(log); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := artifacts.New(ctx, cfg.Artifacts)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	app.artifacts = store

	app.registry = registry.NewService(registry.NewRepository(db.DB), log.Named("registry"))
	app.data = trainingdata.NewService(trainingdata.NewRepository(db.DB), log.Named("trainingdata"))
	app.feedback = feedback.NewService(feedback.NewRepository(db.DB), log.Named("feedback"))
	app.jobs = jobs.NewService(jobs.NewRepository(db.DB), log.Named("jobs"))

	if err := app.buildEngine(); err != nil {
		app.Close()
		return nil, err
	}

	var locker training.Locker = training.NewLocalLocker()
	if cfg.Redis.Enabled {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		locker = training.NewRedisLocker(app.redis, cfg.Redis.LockTTL, log.Named("lock"))
	}

	app.pipeline = training.NewPipeline(training.PipelineDeps{
		DB:        db.DB,
		Trainer:   training.NewTrainer(app.data, log.Named("trainer")),
		Registry:  app.registry,
		Artifacts: store,
		Locker:    locker,
		Log:       log.Named("pipeline"),
	})

	return app, nil
}

// buildEngine wires the detectors and reloads the statistical model whenever
// the active version of the serving lineage changes
func (a *application) buildEngine() error {
	cc := a.cfg.Classification
	engineCfg, err := classification.EngineConfigFromConfig(cc)
	if err != nil {
		return err
	}

	pattern, err := classification.NewPatternMatcher(cc.MaxTextLength, classification.DefaultPatterns()...)
	if err != nil {
		return fmt.Errorf("failed to compile patterns: %w", err)
	}
	pattern.SetBaseConfidence(engineCfg.Confidence.PatternBase)

	var statistical *classification.StatisticalClassifier
	if cc.UseStatistical {
		var sidecar *ner.Client
		if a.cfg.NER.SidecarURL != "" {
			sidecar = ner.NewClient(a.cfg.NER.SidecarURL, a.cfg.NER.Timeout)
		}
		loader := ner.NewLoader(ner.LoaderOptions{
			Sidecar:        sidecar,
			UseLocalTagger: a.cfg.NER.UseLocalTagger,
			Lineage:        a.cfg.Training.Lineage,
			Models:         a.registry,
			Artifacts:      a.artifacts,
			Log:            a.log.Named("ner"),
		})
		statistical = classification.NewStatisticalClassifier(loader, classification.StatisticalOptions{
			Confidence:       engineCfg.Confidence,
			LengthHeuristics: cc.LengthHeuristics,
			MaxTextLength:    cc.MaxTextLength,
			LoadRetries:      a.cfg.NER.LoadRetries,
			LoadBackoff:      a.cfg.NER.LoadBackoff,
		}, a.log.Named("statistical"))

		lineage := a.cfg.Training.Lineage
		a.registry.OnActivation(func(ctx context.Context, changed string) {
			if changed != lineage {
				return
			}
			if err := statistical.Reload(context.WithoutCancel(ctx)); err != nil {
				a.log.Warn("statistical model reload failed, serving degraded",
					zap.String("lineage", lineage), zap.Error(err))
				return
			}
			a.log.Info("statistical model reloaded", zap.String("lineage", lineage))
		})
	}

	a.engine = classification.NewEngine(engineCfg, pattern, statistical, a.log.Named("engine"))
	return nil
}

// recoverInterrupted fails the training runs a previous process left
// unfinished and settles their jobs, then requeues jobs whose worker has not
// been heard from in training.stale_job_after. A job whose run never started
// training goes back to the queue as is; one whose run was training is
// failed so the retry budget bounds a cycle that keeps crashing.
func (a *application) recoverInterrupted(ctx context.Context) error {
	runs, err := a.pipeline.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted training runs: %w", err)
	}

	for _, run := range runs {
		if run.JobID == nil {
			continue
		}
		job, err := a.jobs.GetJob(ctx, *run.JobID)
		if errors.Is(err, jobs.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if job.Status != models.JobStatusProcessing {
			continue
		}

		if run.StartedAt == nil {
			err = a.jobs.ReleaseJob(ctx, job.ID)
		} else {
			err = a.jobs.FailJobWithDetails(ctx, job.ID, models.ErrorTypeSystem, run.ErrorCode, run.Error, "")
		}
		if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
			return fmt.Errorf("failed to settle job %d of run %d: %w", job.ID, run.ID, err)
		}
	}

	released, err := a.jobs.ReleaseStale(ctx, a.cfg.Training.StaleJobAfter)
	if err != nil {
		return fmt.Errorf("failed to release stale jobs: %w", err)
	}
	if len(runs) > 0 || released > 0 {
		a.log.Info("recovered interrupted work",
			zap.Int("runs", len(runs)),
			zap.Int64("stale_jobs", released))
	}
	return nil
}

// workerPool builds the background workers for training and job cleanup
func (a *application) workerPool() *workers.WorkerPool {
	pool := workers.NewWorkerPool(a.jobs, a.cfg.Training.Workers, a.cfg.Training.PollInterval, a.log)
	pool.RegisterProcessor(workers.NewTrainingProcessor(a.jobs, a.pipeline, a.cycleConfig, a.log))
	pool.RegisterProcessor(workers.NewJobCleanupProcessor(a.jobs, a.cfg.Training.JobRetention, a.log))
	return pool
}

// dependencies exposes the services to the HTTP handlers
func (a *application) dependencies(pool *workers.WorkerPool) *types.Dependencies {
	return &types.Dependencies{
		DB:                  a.db,
		Classifier:          a.engine,
		FeedbackService:     a.feedback,
		TrainingDataService: a.data,
		RegistryService:     a.registry,
		Pipeline:            a.pipeline,
		JobService:          a.jobs,
		WorkerPool:          pool,
		TrainingDefaults:    a.cycleConfig,
		Log:                 a.log,
	}
}

// Close releases the database and redis connections
func (a *application) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("closing redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("closing database", zap.Error(err))
		}
	}
}
