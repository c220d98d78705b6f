package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bulkjobs/db"
	"bulkjobs/metrics"
	"bulkjobs/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrInvalidRequest is returned for a request rejected before any job exists
var ErrInvalidRequest = errors.New("invalid bulk request")

// CollectionResolver maps a logical entity name to a physical collection
type CollectionResolver interface {
	Resolve(logical string) (string, error)
}

// Processor runs bulk jobs: one sequential pass over the items, committing
// staged writes whenever the store's batch ceiling is reached.
type Processor struct {
	jobs      *JobManager
	store     db.DocumentStore
	resolver  CollectionResolver
	validator *Validator
	reporter  *ProgressReporter
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewProcessor(
	jobs *JobManager,
	store db.DocumentStore,
	resolver CollectionResolver,
	validator *Validator,
	reporter *ProgressReporter,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		jobs:      jobs,
		store:     store,
		resolver:  resolver,
		validator: validator,
		reporter:  reporter,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Jobs exposes the job record manager for status polling
func (p *Processor) Jobs() *JobManager {
	return p.jobs
}

// ValidateRequest rejects requests that must not create a job
func ValidateRequest(req models.BulkRequest) error {
	if req.ActionName() == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidRequest)
	}
	if req.ItemCount() == 0 {
		return fmt.Errorf("%w: ids are required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Collection) == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidRequest)
	}
	return nil
}

// Submit validates the request and creates its pending job
func (p *Processor) Submit(ctx context.Context, req models.BulkRequest, requestedBy string) (*BulkJobContext, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	action, _ := ParseAction(req.ActionName(), req.Data, req.Options)
	op := operationTypeOf(action)
	collection := normalizeCollection(req.Collection)

	id, err := p.jobs.CreateJob(ctx, op, req.ActionName(), collection, req.ItemCount(), requestedBy)
	if err != nil {
		return nil, err
	}
	p.metrics.JobsSubmitted.WithLabelValues(collection, string(op)).Inc()
	return newBulkJobContext(id, req, requestedBy), nil
}

// Resume rebuilds the run context of an accepted task
func (p *Processor) Resume(task models.BulkTask) (*BulkJobContext, error) {
	id, err := primitive.ObjectIDFromHex(task.JobID)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", task.JobID, err)
	}
	return newBulkJobContext(id, task.Request, task.RequestedBy), nil
}

// Process submits and executes a request in the caller's goroutine
func (p *Processor) Process(ctx context.Context, req models.BulkRequest, requestedBy string) (*models.BulkResult, error) {
	bc, err := p.Submit(ctx, req, requestedBy)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, bc)
}

// Execute runs the job to completion. Runs cannot be cancelled: the caller's
// cancellation is not propagated to store calls. Errors returned here are
// run-fatal; the job has already been marked failed.
func (p *Processor) Execute(ctx context.Context, bc *BulkJobContext) (*models.BulkResult, error) {
	ctx = context.WithoutCancel(ctx)
	bc.StartedAt = p.now()
	log := p.logger.With().
		Str("job_id", bc.JobID.Hex()).
		Str("collection", bc.Collection).
		Str("action", bc.ActionName).
		Logger()

	if err := p.jobs.MarkProcessing(ctx, bc.JobID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, fmt.Errorf("failed to start job %s: %w", bc.JobID.Hex(), err)
		}
		return nil, p.abort(ctx, bc, log, fmt.Errorf("failed to start job: %w", err))
	}
	log.Info().Int("total_items", len(bc.Items)).Msg("bulk job processing")

	physical, err := p.resolver.Resolve(bc.Collection)
	if err != nil {
		return nil, p.abort(ctx, bc, log, err)
	}
	bc.Physical = physical

	batch := p.store.NewBatch(physical)
	limit := p.store.MaxBatchSize()

	for _, item := range bc.Items {
		if err := p.stageItem(ctx, bc, batch, item); err != nil {
			bc.recordFailure(item.ID, err)
			p.metrics.ItemsProcessed.WithLabelValues(bc.Collection, "failure").Inc()
		} else {
			bc.recordSuccess(item.ID)
			p.metrics.ItemsProcessed.WithLabelValues(bc.Collection, "success").Inc()
		}

		if batch.Len() >= limit {
			if err := p.commit(ctx, bc, batch); err != nil {
				return nil, p.abort(ctx, bc, log, err)
			}
		}

		if p.reporter.Due(bc.Processed()) {
			_ = p.reporter.ReportProgress(ctx, bc.JobID, bc.Processed(), bc.SuccessCount(), bc.ErrorCount(), bc.Failures())
		}
	}

	if batch.Len() > 0 {
		if err := p.commit(ctx, bc, batch); err != nil {
			return nil, p.abort(ctx, bc, log, err)
		}
	}

	// whole seconds, truncated
	duration := int64(p.now().Sub(bc.StartedAt) / time.Second)

	status, err := p.jobs.Finalize(ctx, bc.JobID, bc.SuccessCount(), bc.ErrorCount(), p.reporter.Cap(bc.Failures()), duration)
	if err != nil {
		return nil, p.abort(ctx, bc, log, err)
	}

	p.metrics.JobsFinished.WithLabelValues(bc.Collection, string(status)).Inc()
	p.metrics.JobDuration.WithLabelValues(bc.Collection).Observe(p.now().Sub(bc.StartedAt).Seconds())
	log.Info().
		Str("status", string(status)).
		Int("succeeded", bc.SuccessCount()).
		Int("failed", bc.ErrorCount()).
		Int64("duration", duration).
		Msg("bulk job finished")

	return bc.Result(status, duration), nil
}

// stageItem validates one item and stages its write. A returned error is that
// item's failure; it never ends the run.
func (p *Processor) stageItem(ctx context.Context, bc *BulkJobContext, batch db.WriteBatch, item models.Item) error {
	if strings.TrimSpace(item.ID) == "" {
		return ErrItemIDRequired
	}
	if bc.ActionErr != nil {
		return bc.ActionErr
	}

	m, err := p.validator.Validate(bc.Action, bc.Collection, item, bc.RequestedBy, p.now())
	if err != nil {
		return err
	}

	exists, err := p.store.Exists(ctx, bc.Physical, m.ID)
	if err != nil {
		return err
	}

	switch m.Kind {
	case MutationSet:
		if !exists {
			return batch.Set(m.ID, m.Fields)
		}
		if imp, ok := bc.Action.(Import); !ok || !imp.UpdateExisting {
			return ErrItemExists
		}
		delete(m.Fields, "createdAt")
		return batch.Update(m.ID, m.Fields)
	case MutationUpdate:
		if !exists {
			return ErrItemNotFound
		}
		return batch.Update(m.ID, m.Fields)
	case MutationDelete:
		if !exists {
			return ErrItemNotFound
		}
		return batch.Delete(m.ID)
	default:
		return fmt.Errorf("unsupported mutation kind %d", m.Kind)
	}
}

func (p *Processor) commit(ctx context.Context, bc *BulkJobContext, batch db.WriteBatch) error {
	n := batch.Len()
	if err := batch.Commit(ctx); err != nil {
		return err
	}
	p.metrics.BatchCommits.WithLabelValues(bc.Collection).Inc()
	p.logger.Debug().Str("job_id", bc.JobID.Hex()).Int("writes", n).Msg("batch committed")
	return nil
}

// abort marks the job failed with one system error. Batches already
// committed stay applied.
func (p *Processor) abort(ctx context.Context, bc *BulkJobContext, log zerolog.Logger, cause error) error {
	log.Error().Err(cause).Int("processed", bc.Processed()).Msg("bulk job aborted")

	runErr := fmt.Errorf("bulk job %s aborted: %w", bc.JobID.Hex(), cause)
	if err := p.jobs.RecordFatalError(ctx, bc.JobID, cause.Error()); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to record fatal error: %w", err))
	}
	p.metrics.JobsFinished.WithLabelValues(bc.Collection, string(models.StatusFailed)).Inc()
	return runErr
}
