package services

import (
	"context"
	"errors"
	"sync"

	"bulkjobs/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrWorkerStopped is returned when dispatching to a stopped worker
var ErrWorkerStopped = errors.New("job worker stopped")

// stoppedBeforeRun is recorded on tasks still queued when the worker stops
const stoppedBeforeRun = "worker stopped before job ran"

// JobWorker runs accepted bulk tasks in the background
type JobWorker struct {
	processor  *Processor
	jobQueue   chan models.BulkTask
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	// dispatchMu is held shared by Dispatch and exclusively by the drain in
	// Stop, so no task can be queued after the drain.
	dispatchMu sync.RWMutex
	numWorkers int
	logger     zerolog.Logger
}

// NewJobWorker creates a new job worker with the specified number of worker goroutines
func NewJobWorker(processor *Processor, queueSize int, numWorkers int, logger zerolog.Logger) *JobWorker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &JobWorker{
		processor:  processor,
		jobQueue:   make(chan models.BulkTask, queueSize),
		stopChan:   make(chan struct{}),
		numWorkers: numWorkers,
		logger:     logger,
	}
}

// Start initializes and starts worker goroutines to process tasks
// Each worker reads tasks from the job queue channel and runs them to completion
func (jw *JobWorker) Start() {
	jw.logger.Info().Int("workers", jw.numWorkers).Msg("starting job workers")

	for i := 1; i <= jw.numWorkers; i++ {
		jw.wg.Add(1)
		go jw.worker(i)
	}
}

// worker is a single worker goroutine that processes tasks
func (jw *JobWorker) worker(id int) {
	defer jw.wg.Done()
	log := jw.logger.With().Int("worker", id).Logger()
	log.Debug().Msg("worker started")

	for {
		select {
		case task := <-jw.jobQueue:
			jw.Run(context.Background(), task)

		case <-jw.stopChan:
			log.Debug().Msg("worker stopped")
			return
		}
	}
}

// Run executes one task. Failures are recorded on the job; nothing is returned.
func (jw *JobWorker) Run(ctx context.Context, task models.BulkTask) {
	bc, err := jw.processor.Resume(task)
	if err != nil {
		jw.logger.Error().Err(err).Str("job_id", task.JobID).Msg("failed to resume bulk task")
		return
	}
	if _, err := jw.processor.Execute(ctx, bc); err != nil {
		jw.logger.Error().Err(err).Str("job_id", task.JobID).Msg("bulk task failed")
	}
}

// Dispatch queues a task, blocking while the queue is full
func (jw *JobWorker) Dispatch(ctx context.Context, task models.BulkTask) error {
	jw.dispatchMu.RLock()
	defer jw.dispatchMu.RUnlock()

	select {
	case <-jw.stopChan:
		return ErrWorkerStopped
	default:
	}

	select {
	case jw.jobQueue <- task:
		return nil
	case <-jw.stopChan:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting tasks and waits for running ones. Tasks still queued
// are marked failed so no accepted job stays pending.
func (jw *JobWorker) Stop() {
	jw.stopOnce.Do(func() {
		jw.logger.Info().Msg("stopping all workers")
		close(jw.stopChan)
	})
	jw.wg.Wait()

	jw.dispatchMu.Lock()
	defer jw.dispatchMu.Unlock()
	for {
		select {
		case task := <-jw.jobQueue:
			jw.fail(task)
		default:
			return
		}
	}
}

// fail records that a queued task never ran
func (jw *JobWorker) fail(task models.BulkTask) {
	log := jw.logger.With().Str("job_id", task.JobID).Logger()
	id, err := primitive.ObjectIDFromHex(task.JobID)
	if err != nil {
		log.Error().Err(err).Msg("dropping queued task with invalid job id")
		return
	}
	if err := jw.processor.Jobs().RecordFatalError(context.Background(), id, stoppedBeforeRun); err != nil {
		log.Error().Err(err).Msg("failed to mark queued job as failed")
		return
	}
	log.Warn().Msg("queued job failed on shutdown")
}
