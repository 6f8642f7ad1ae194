package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/jobs"
)

// JobProcessor runs the jobs of the types it accepts. A returned
// *models.StructuredJobError decides whether the queue retries the job.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job) error
	CanProcess(jobType models.JobType) bool
}

// Worker polls the queue for training cycles and cleanup sweeps
type Worker struct {
	id           string
	queue        jobs.Service
	processors   map[models.JobType]JobProcessor
	pollInterval time.Duration
	log          *zap.Logger
}

func NewWorker(id string, queue jobs.Service, pollInterval time.Duration, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		id:           id,
		queue:        queue,
		processors:   make(map[models.JobType]JobProcessor),
		pollInterval: pollInterval,
		log:          log.With(zap.String("worker_id", id)),
	}
}

// RegisterProcessor routes every known job type the processor accepts to
// it. A later registration for the same type wins.
func (w *Worker) RegisterProcessor(p JobProcessor) {
	for _, jobType := range models.AllJobTypes {
		if p.CanProcess(jobType) {
			w.processors[jobType] = p
		}
	}
}

// run polls until stop is closed or ctx ends. A job in progress when stop
// closes runs to completion; ctx cancellation is passed on to it.
func (w *Worker) run(ctx context.Context, stop <-chan struct{}) {
	w.log.Info("worker starting")
	defer w.log.Info("worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.processNextJob(ctx); err != nil {
				w.log.Error("error processing job", zap.Error(err))
			}
		}
	}
}

func (w *Worker) types() []models.JobType {
	types := make([]models.JobType, 0, len(w.processors))
	for _, jobType := range models.AllJobTypes {
		if _, ok := w.processors[jobType]; ok {
			types = append(types, jobType)
		}
	}
	return types
}

// processNextJob claims one job and runs it, reporting whether anything was
// claimed. Failures are recorded on the job before being returned.
func (w *Worker) processNextJob(ctx context.Context) (bool, error) {
	types := w.types()
	if len(types) == 0 {
		return false, errors.New("no job processors registered")
	}

	job, err := w.queue.ClaimNextJob(ctx, w.id, types)
	if errors.Is(err, jobs.ErrNoJobsAvailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := w.log.With(zap.Uint("job_id", job.ID), zap.String("type", string(job.Type)))
	log.Info("claimed job", zap.Int("attempt", job.RetryCount+1))

	if err := w.processors[job.Type].ProcessJob(ctx, job); err != nil {
		// shutdown must not leave the job stuck in processing
		if failErr := w.queue.FailJob(context.WithoutCancel(ctx), job.ID, err); failErr != nil {
			log.Error("failed to mark job as failed", zap.Error(failErr))
		}
		return true, fmt.Errorf("%s job %d: %w", job.Type, job.ID, err)
	}

	log.Info("completed job")
	return true, nil
}

// WorkerPool runs a fixed number of workers over one queue
type WorkerPool struct {
	workers []*Worker
	log     *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewWorkerPool(queue jobs.Service, size int, pollInterval time.Duration, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("workers")

	pool := &WorkerPool{log: log}
	for i := 1; i <= size; i++ {
		pool.workers = append(pool.workers, NewWorker(fmt.Sprintf("worker-%d", i), queue, pollInterval, log))
	}
	return pool
}

// RegisterProcessor must be called before Start
func (p *WorkerPool) RegisterProcessor(processor JobProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.RegisterProcessor(processor)
	}
}

func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return errors.New("worker pool already started")
	}

	p.log.Info("starting worker pool", zap.Int("workers", len(p.workers)))
	p.stop = make(chan struct{})
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker, stop <-chan struct{}) {
			defer p.wg.Done()
			w.run(ctx, stop)
		}(w, p.stop)
	}
	return nil
}

// Stop waits for in-flight jobs to finish. It is safe to call more than once.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}

	p.log.Info("stopping worker pool")
	close(p.stop)
	p.wg.Wait()
	p.stop = nil
}
