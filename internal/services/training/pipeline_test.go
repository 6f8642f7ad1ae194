package training

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/artifacts"
	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/feedback"
	"github.com/killallgit/sensitive-data-api/internal/services/registry"
	"github.com/killallgit/sensitive-data-api/internal/services/trainingdata"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

type pipelineFixture struct {
	db       *gorm.DB
	pipeline *Pipeline
	registry *registry.ServiceImpl
	feedback feedback.Service
	data     trainingdata.Service
	store    artifacts.Store
	locker   *LocalLocker
}

func newFixture(t *testing.T, store artifacts.Store) *pipelineFixture {
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	require.NoError(t, db.Migrate(log))
	t.Cleanup(func() { _ = db.Close() })

	if store == nil {
		store, err = artifacts.NewFilesystemStore(t.TempDir())
		require.NoError(t, err)
	}

	reg := registry.NewService(registry.NewRepository(db.DB), log)
	data := trainingdata.NewService(trainingdata.NewRepository(db.DB), log)
	locker := NewLocalLocker()
	return &pipelineFixture{
		db: db.DB,
		pipeline: NewPipeline(PipelineDeps{
			DB:        db.DB,
			Trainer:   NewTrainer(data, log),
			Registry:  reg,
			Artifacts: store,
			Locker:    locker,
			Log:       log,
		}),
		registry: reg,
		feedback: feedback.NewService(feedback.NewRepository(db.DB), log),
		data:     data,
		store:    store,
		locker:   locker,
	}
}

var names = []string{"Alice", "Bruno", "Chidi", "Dana", "Emeka", "Farah", "Goran", "Hana", "Ivan", "Jun", "Kemal", "Lena"}

// seedFeedback submits n corrected feedback rows, each yielding one example
func (f *pipelineFixture) seedFeedback(t *testing.T, n int) []uint {
	var ids []uint
	for i := 0; i < n; i++ {
		name := names[i%len(names)]
		id, err := f.feedback.SubmitFeedback(context.Background(), feedback.SubmitRequest{
			Text:      fmt.Sprintf("Please call %s tomorrow", name),
			IsCorrect: false,
			CorrectedEntities: []models.Entity{
				{Text: name, Start: 12, End: 12 + len(name), Label: models.LabelPII, Sublabel: "PERSON"},
			},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func (f *pipelineFixture) seedDatasets(t *testing.T, n int) {
	for i := 0; i < n; i++ {
		name := names[(i+5)%len(names)]
		_, err := f.data.AddExample(context.Background(), trainingdata.AddRequest{
			Text:     fmt.Sprintf("Dr. %s reviewed the chart", name),
			Entities: []models.Entity{{Start: 4, End: 4 + len(name), Label: models.LabelPII, Sublabel: "PERSON"}},
			Verified: true,
		})
		require.NoError(t, err)
	}
}

func (f *pipelineFixture) incorporated(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.Feedback{}).Where("incorporated = ?", true).Count(&n).Error)
	return n
}

func (f *pipelineFixture) used(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.TrainingExample{}).Where("usage_count > 0").Count(&n).Error)
	return n
}

func (f *pipelineFixture) versions(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.db.Model(&models.ModelVersion{}).Count(&n).Error)
	return n
}

func testCycle() CycleConfig {
	return CycleConfig{
		Lineage:         "default",
		Iterations:      5,
		BatchSize:       4,
		Dropout:         0.1,
		TestSplit:       0.25,
		MinSamples:      10,
		Seed:            42,
		IncludeFeedback: true,
		IncludeDatasets: true,
	}
}

func TestRunTrainingCycle_Completes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	feedbackIDs := f.seedFeedback(t, 8)
	f.seedDatasets(t, 4)

	var progress []int
	cfg := testCycle()
	cfg.Progress = func(p int) { progress = append(progress, p) }

	run, err := f.pipeline.RunTrainingCycle(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, models.TrainingRunCompleted, run.Status)
	assert.Equal(t, 9, run.TrainSamples)
	assert.Equal(t, 3, run.TestSamples)
	assert.Len(t, run.LossCurve, 5)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)
	require.NotNil(t, run.ModelVersionID)
	assert.Equal(t, 100, progress[len(progress)-1])

	version, err := f.registry.Get(ctx, *run.ModelVersionID)
	require.NoError(t, err)
	assert.False(t, version.Active, "training never activates a model")
	assert.False(t, version.Production)
	assert.Equal(t, "v1", version.Version)
	assert.Equal(t, "default/v1/model.json", version.ArtifactLocation)
	assert.Equal(t, run.F1, version.F1)
	assert.Equal(t, []string{models.LabelPII}, []string(version.ClassificationTypes))
	assert.Nil(t, version.ParentID)

	exists, err := f.store.Exists(ctx, version.ArtifactLocation)
	require.NoError(t, err)
	assert.True(t, exists)

	for _, id := range feedbackIDs {
		fb, err := f.feedback.GetFeedback(ctx, id)
		require.NoError(t, err)
		assert.True(t, fb.Incorporated)
		require.NotNil(t, fb.TrainingRunID)
		assert.Equal(t, run.ID, *fb.TrainingRunID)
	}

	metrics, err := f.registry.GetMetrics(ctx, version.ID)
	require.NoError(t, err)
	seen := map[string]int{}
	for _, m := range metrics {
		seen[m.Name+"/"+m.EntityType]++
		assert.Equal(t, run.ID, m.TrainingRunID)
	}
	assert.Equal(t, 1, seen["f1/"])
	assert.Equal(t, 1, seen["final_loss/"])
	assert.Equal(t, int64(12), f.used(t))

	// The active model is untouched
	_, found, err := f.registry.ActiveArtifact(ctx, "default")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunTrainingCycle_FineTunesPromotedModel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seedFeedback(t, 6)
	f.seedDatasets(t, 6)

	first, err := f.pipeline.RunTrainingCycle(ctx, testCycle())
	require.NoError(t, err)
	_, err = f.registry.Promote(ctx, *first.ModelVersionID, registry.PromoteOptions{})
	require.NoError(t, err)

	// Feedback is consumed; the verified datasets remain eligible
	cfg := testCycle()
	cfg.MinSamples = 6
	second, err := f.pipeline.RunTrainingCycle(ctx, cfg)
	require.NoError(t, err)

	version, err := f.registry.Get(ctx, *second.ModelVersionID)
	require.NoError(t, err)
	assert.Equal(t, "v2", version.Version)
	require.NotNil(t, version.ParentID)
	assert.Equal(t, *first.ModelVersionID, *version.ParentID)

	active, err := f.registry.GetActive(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, *first.ModelVersionID, active.ID, "the promoted model stays active")
}

func TestRunTrainingCycle_InsufficientData(t *testing.T) {
	f := newFixture(t, nil)
	f.seedFeedback(t, 5)

	run, err := f.pipeline.RunTrainingCycle(context.Background(), testCycle())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInsufficientTrainingData))

	require.NotNil(t, run)
	assert.Equal(t, models.TrainingRunFailed, run.Status)
	assert.Equal(t, string(apperrors.ErrCodeInsufficientTrainingData), run.ErrorCode)
	assert.Contains(t, run.Error, "insufficient")
	assert.Nil(t, run.StartedAt, "the run never entered running")
	assert.Zero(t, f.versions(t))
	assert.Zero(t, f.incorporated(t))
	assert.Zero(t, f.used(t), "examples of a run that never started are not counted as used")
}

func TestRunTrainingCycle_ConcurrentConflict(t *testing.T) {
	t.Run("running run in the database", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedFeedback(t, 12)
		require.NoError(t, f.db.Create(&models.TrainingRun{UUID: "other", Lineage: "default", Status: models.TrainingRunRunning}).Error)

		run, err := f.pipeline.RunTrainingCycle(context.Background(), testCycle())
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeConcurrentTrainingConflict))
		assert.Equal(t, models.TrainingRunFailed, run.Status)
		assert.Zero(t, f.incorporated(t))

		var running int64
		require.NoError(t, f.db.Model(&models.TrainingRun{}).Where("status = ?", models.TrainingRunRunning).Count(&running).Error)
		assert.Equal(t, int64(1), running)
	})

	t.Run("lineage lock held", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedFeedback(t, 12)
		unlock, ok, err := f.locker.TryLock(context.Background(), "default")
		require.NoError(t, err)
		require.True(t, ok)
		defer unlock()

		run, err := f.pipeline.RunTrainingCycle(context.Background(), testCycle())
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeConcurrentTrainingConflict))
		assert.Equal(t, models.TrainingRunFailed, run.Status)

		// Other lineages are not blocked
		cfg := testCycle()
		cfg.Lineage = "medical"
		run, err = f.pipeline.RunTrainingCycle(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, models.TrainingRunCompleted, run.Status)
	})
}

func TestRunTrainingCycle_Cancel(t *testing.T) {
	f := newFixture(t, nil)
	f.seedFeedback(t, 12)

	cancelled := false
	cfg := testCycle()
	cfg.Iterations = 20
	cfg.Progress = func(p int) {
		if p <= 5 || cancelled {
			return
		}
		var run models.TrainingRun
		require.NoError(t, f.db.Where("status = ?", models.TrainingRunRunning).First(&run).Error)
		cancelled = f.pipeline.Cancel(run.ID)
	}

	run, err := f.pipeline.RunTrainingCycle(context.Background(), cfg)
	require.True(t, cancelled)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTrainingCancelled))
	assert.Equal(t, models.TrainingRunFailed, run.Status)
	assert.Equal(t, string(apperrors.ErrCodeTrainingCancelled), run.ErrorCode)
	assert.Zero(t, run.F1, "partial metrics are discarded")
	assert.Zero(t, f.versions(t))
	assert.Zero(t, f.incorporated(t))

	exists, err := f.store.Exists(context.Background(), artifacts.ModelKey("default", "v1"))
	require.NoError(t, err)
	assert.False(t, exists)

	assert.False(t, f.pipeline.Cancel(run.ID), "finished runs are no longer tracked")
}

type failingStore struct {
	artifacts.Store
}

func (failingStore) Put(ctx context.Context, key string, data []byte) error {
	return errors.New("bucket unavailable")
}

func TestRunTrainingCycle_ArtifactFailure(t *testing.T) {
	base, err := artifacts.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	f := newFixture(t, failingStore{Store: base})
	f.seedFeedback(t, 12)

	run, err := f.pipeline.RunTrainingCycle(context.Background(), testCycle())
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTrainingFailure))
	assert.Equal(t, models.TrainingRunFailed, run.Status)
	assert.Contains(t, run.Error, "save artifact")
	assert.NotNil(t, run.StartedAt)
	assert.Zero(t, f.versions(t))
	assert.Zero(t, f.incorporated(t), "failed runs leave feedback eligible")

	// The feedback is picked up again once the store recovers
	f.pipeline.artifacts = base
	run, err = f.pipeline.RunTrainingCycle(context.Background(), testCycle())
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunCompleted, run.Status)
	assert.Equal(t, int64(12), f.incorporated(t))
}

type brokenRegistry struct {
	registry.Service
}

func (brokenRegistry) GetActive(ctx context.Context, lineage string) (*models.ModelVersion, error) {
	return nil, apperrors.DatabaseError("get active model version", errors.New("disk I/O error"))
}

func TestRunTrainingCycle_ActiveLookupFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.seedFeedback(t, 12)
	f.pipeline.registry = brokenRegistry{Service: f.registry}

	run, err := f.pipeline.RunTrainingCycle(context.Background(), testCycle())
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTrainingFailure))
	assert.Equal(t, models.TrainingRunFailed, run.Status)
	assert.Contains(t, run.Error, "register")
	assert.Zero(t, f.versions(t), "a version is never registered without its parent")
	assert.Zero(t, f.incorporated(t))

	exists, err := f.store.Exists(context.Background(), artifacts.ModelKey("default", "v1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecoverInterrupted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seedFeedback(t, 12)

	jobID := uint(7)
	orphan := &models.TrainingRun{UUID: "orphan", Lineage: "default", Status: models.TrainingRunRunning, JobID: &jobID}
	queued := &models.TrainingRun{UUID: "queued", Lineage: "medical", Status: models.TrainingRunQueued}
	done := &models.TrainingRun{UUID: "done", Lineage: "default", Status: models.TrainingRunCompleted}
	for _, run := range []*models.TrainingRun{orphan, queued, done} {
		require.NoError(t, f.db.Create(run).Error)
	}

	// The orphan blocks the lineage until it is recovered
	_, err := f.pipeline.RunTrainingCycle(ctx, testCycle())
	require.True(t, apperrors.Is(err, apperrors.ErrCodeConcurrentTrainingConflict))

	recovered, err := f.pipeline.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 2, "the conflicted attempt already failed itself")

	byUUID := map[string]models.TrainingRun{}
	for _, run := range recovered {
		byUUID[run.UUID] = run
	}
	for _, uuid := range []string{"orphan", "queued"} {
		run, ok := byUUID[uuid]
		require.True(t, ok, uuid)
		assert.Equal(t, models.TrainingRunFailed, run.Status)
		assert.Equal(t, string(apperrors.ErrCodeTrainingInterrupted), run.ErrorCode)
		assert.NotNil(t, run.CompletedAt)
	}
	require.NotNil(t, byUUID["orphan"].JobID)
	assert.Equal(t, jobID, *byUUID["orphan"].JobID)

	got, err := f.pipeline.GetRun(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunCompleted, got.Status, "finished runs are left alone")

	again, err := f.pipeline.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	run, err := f.pipeline.RunTrainingCycle(ctx, testCycle())
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunCompleted, run.Status)
	assert.Equal(t, int64(12), f.incorporated(t))
}

func TestRecoverInterrupted_SkipsLockedLineage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	held := &models.TrainingRun{UUID: "held", Lineage: "default", Status: models.TrainingRunRunning}
	stray := &models.TrainingRun{UUID: "stray", Lineage: "medical", Status: models.TrainingRunRunning}
	require.NoError(t, f.db.Create(held).Error)
	require.NoError(t, f.db.Create(stray).Error)

	unlock, ok, err := f.locker.TryLock(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	recovered, err := f.pipeline.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "stray", recovered[0].UUID)

	got, err := f.pipeline.GetRun(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunRunning, got.Status, "another holder may still be training it")
}

func TestRunTrainingCycle_InvalidConfig(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		mutate func(*CycleConfig)
	}{
		{"no lineage", func(c *CycleConfig) { c.Lineage = "" }},
		{"zero iterations", func(c *CycleConfig) { c.Iterations = 0 }},
		{"test split of one", func(c *CycleConfig) { c.TestSplit = 1 }},
		{"dropout of one", func(c *CycleConfig) { c.Dropout = 1 }},
		{"no sources", func(c *CycleConfig) { c.IncludeFeedback, c.IncludeDatasets = false, false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCycle()
			tt.mutate(&cfg)
			run, err := f.pipeline.RunTrainingCycle(context.Background(), cfg)
			assert.Nil(t, run)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
		})
	}

	var runs int64
	require.NoError(t, f.db.Model(&models.TrainingRun{}).Count(&runs).Error)
	assert.Zero(t, runs)
}

func TestListAndGetRuns(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seedFeedback(t, 3)

	cfg := testCycle()
	cfg.MinSamples = 50
	failed, _ := f.pipeline.RunTrainingCycle(ctx, cfg)
	require.NotNil(t, failed)

	page, err := f.pipeline.ListRuns(ctx, ListFilters{Status: models.TrainingRunFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = f.pipeline.ListRuns(ctx, ListFilters{Lineage: "medical"})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Items)

	got, err := f.pipeline.GetRun(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, failed.UUID, got.UUID)

	_, err = f.pipeline.GetRun(ctx, 999)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestRepository_TransitionIsWriteOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	repo := NewRepository(f.db)

	run := &models.TrainingRun{UUID: "r", Lineage: "default", Status: models.TrainingRunQueued}
	require.NoError(t, repo.Create(ctx, run))

	assert.ErrorIs(t, repo.Transition(ctx, run.ID, models.TrainingRunCompleted, nil), ErrInvalidTransition)
	require.NoError(t, repo.Transition(ctx, run.ID, models.TrainingRunRunning, nil))
	require.NoError(t, repo.Transition(ctx, run.ID, models.TrainingRunFailed, map[string]interface{}{"error": "boom"}))
	assert.ErrorIs(t, repo.Transition(ctx, run.ID, models.TrainingRunCompleted, nil), ErrInvalidTransition)
	assert.ErrorIs(t, repo.Transition(ctx, run.ID, models.TrainingRunRunning, nil), ErrInvalidTransition)

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}
