package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bulkjobs/db"
	"bulkjobs/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrJobNotFound is returned when no job has the requested id
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a job is asked to leave a terminal state
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobManager owns the lifecycle of bulk job records
type JobManager struct {
	store  db.JobStore
	logger zerolog.Logger
	now    func() time.Time
}

func NewJobManager(store db.JobStore, logger zerolog.Logger) *JobManager {
	return &JobManager{store: store, logger: logger, now: time.Now}
}

// CreateJob writes a pending job and returns its id. Storage errors are returned.
func (jm *JobManager) CreateJob(ctx context.Context, op models.OperationType, action, collection string, itemCount int, requestorID string) (primitive.ObjectID, error) {
	now := jm.now()
	job := &models.BulkJob{
		ID:               primitive.NewObjectID(),
		OperationType:    op,
		Action:           action,
		TargetCollection: collection,
		RequestedBy:      requestorID,
		Status:           models.StatusPending,
		TotalItems:       itemCount,
		Errors:           []models.ItemError{},
		StartedAt:        now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := jm.store.InsertJob(ctx, job); err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create job: %w", err)
	}
	jm.logger.Debug().Str("job_id", job.ID.Hex()).Str("collection", collection).Int("total_items", itemCount).Msg("bulk job created")
	return job.ID, nil
}

// MarkProcessing moves a pending job to processing. A job already processing
// is left as is.
func (jm *JobManager) MarkProcessing(ctx context.Context, id primitive.ObjectID) error {
	ok, err := jm.store.TransitionJob(ctx, id, []models.JobStatus{models.StatusPending}, models.StatusProcessing)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	job, err := jm.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.StatusProcessing {
		jm.logger.Warn().Str("job_id", id.Hex()).Msg("job already processing")
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, models.StatusProcessing)
}

// Finalize writes final counts. Any success at all completes the job; a job
// with no successes fails. errs is stored as given.
func (jm *JobManager) Finalize(ctx context.Context, id primitive.ObjectID, successCount, errorCount int, errs []models.ItemError, duration int64) (models.JobStatus, error) {
	status := models.StatusFailed
	if successCount > 0 {
		status = models.StatusCompleted
	}
	ok, err := jm.store.FinishJob(ctx, id, models.Outcome{
		Status:         status,
		ProcessedItems: successCount + errorCount,
		SuccessCount:   successCount,
		ErrorCount:     errorCount,
		Errors:         errs,
		CompletedAt:    jm.now(),
		Duration:       &duration,
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", jm.terminalError(ctx, id, status)
	}
	return status, nil
}

// RecordFatalError fails a job whose run aborted, replacing its errors with
// one system entry.
func (jm *JobManager) RecordFatalError(ctx context.Context, id primitive.ObjectID, message string) error {
	ok, err := jm.store.AbortJob(ctx, id, []models.ItemError{{ItemID: models.SystemItemID, Message: message}}, jm.now())
	if err != nil {
		return err
	}
	if !ok {
		return jm.terminalError(ctx, id, models.StatusFailed)
	}
	return nil
}

// GetJob returns ErrJobNotFound when the id is unknown
func (jm *JobManager) GetJob(ctx context.Context, id primitive.ObjectID) (*models.BulkJob, error) {
	found, err := jm.store.FindJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job, ok := found.Get()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id.Hex())
	}
	return job, nil
}

// ListJobs returns the newest jobs first
func (jm *JobManager) ListJobs(ctx context.Context, limit int64) ([]models.BulkJob, error) {
	return jm.store.ListJobs(ctx, limit)
}

func (jm *JobManager) terminalError(ctx context.Context, id primitive.ObjectID, to models.JobStatus) error {
	job, err := jm.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
}
