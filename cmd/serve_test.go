package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/pkg/config"
)

func TestServeCommand_Help(t *testing.T) {
	out, err := executeCommand(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Start the Sensitive Data Classifier API server")
}

func TestServeCommand_InvalidPort(t *testing.T) {
	_, err := executeCommand(t, "serve", "--port", "invalid")
	assert.Error(t, err)
}

func TestServeCommandFlags(t *testing.T) {
	serve, _, err := NewRootCmd().Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"host", "port", "no-workers"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
	}
}

func testConfig(t *testing.T) *config.Config {
	isolateConfig(t)
	require.NoError(t, config.Init())
	cfg, err := config.GetConfig()
	require.NoError(t, err)
	return cfg
}

func TestNewApplication(t *testing.T) {
	cfg := testConfig(t)
	log := zaptest.NewLogger(t)

	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)
	defer app.Close()

	assert.Empty(t, app.db.PendingTables())
	assert.Equal(t, cfg.Training.Lineage, app.cycleConfig.Lineage)

	deps := app.dependencies(app.workerPool())
	assert.NotNil(t, deps.Classifier)
	assert.NotNil(t, deps.Pipeline)
	assert.NotNil(t, deps.WorkerPool)

	assert.NotZero(t, app.engine.Stats().PatternCount)
}

func TestNewApplication_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := newApplication(ctx, cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "redis")
}

func TestScheduleCleanup_StopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	app, err := newApplication(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduleCleanup(ctx, app.jobs, zaptest.NewLogger(t))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduleCleanup did not return after cancel")
	}

	pending, err := app.jobs.ListJobs(context.Background(), models.JobStatusPending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "nothing is queued before the first interval")
}

func TestRecoverInterrupted(t *testing.T) {
	cfg := testConfig(t)
	app, err := newApplication(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Close()
	ctx := context.Background()

	claim := func(lineage string) *models.Job {
		job, err := app.jobs.EnqueueJob(ctx, models.JobTypeTrainingCycle, models.JobPayload{"lineage": lineage})
		require.NoError(t, err)
		claimed, err := app.jobs.ClaimNextJob(ctx, "worker-1", []models.JobType{models.JobTypeTrainingCycle})
		require.NoError(t, err)
		require.Equal(t, job.ID, claimed.ID)
		return job
	}

	trainingJob := claim("default")
	waitingJob := claim("medical")
	started := time.Now().Add(-time.Minute)
	require.NoError(t, app.db.Create(&models.TrainingRun{
		UUID: "training", Lineage: "default", Status: models.TrainingRunRunning, JobID: &trainingJob.ID, StartedAt: &started,
	}).Error)
	require.NoError(t, app.db.Create(&models.TrainingRun{
		UUID: "waiting", Lineage: "medical", Status: models.TrainingRunQueued, JobID: &waitingJob.ID,
	}).Error)

	strandedJob := claim("clinical")
	require.NoError(t, app.db.Model(&models.Job{}).Where("id = ?", strandedJob.ID).
		Update("started_at", time.Now().Add(-2*cfg.Training.StaleJobAfter)).Error)

	require.NoError(t, app.recoverInterrupted(ctx))

	got, err := app.jobs.GetJob(ctx, trainingJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status, "a crash mid-training spends a retry")
	assert.Equal(t, "TRAINING_INTERRUPTED", got.ErrorCode)
	assert.Equal(t, 1, got.RetryCount)

	got, err = app.jobs.GetJob(ctx, waitingJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Zero(t, got.RetryCount)

	got, err = app.jobs.GetJob(ctx, strandedJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)

	var unfinished int64
	require.NoError(t, app.db.Model(&models.TrainingRun{}).
		Where("status IN ?", []models.TrainingRunStatus{models.TrainingRunQueued, models.TrainingRunRunning}).
		Count(&unfinished).Error)
	assert.Zero(t, unfinished)

	require.NoError(t, app.recoverInterrupted(ctx), "recovery is repeatable")
}
