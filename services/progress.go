package services

import (
	"context"

	"bulkjobs/db"
	"bulkjobs/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultProgressInterval is how many processed items pass between progress writes
	DefaultProgressInterval = 10
	// DefaultMaxErrors is how many item errors a job record keeps
	DefaultMaxErrors = 100
)

// ProgressReporter writes running counters to the job record.
//
// Errors beyond MaxErrors are counted but not retained: only the first
// MaxErrors entries, in encounter order, are ever persisted.
type ProgressReporter struct {
	store     db.JobStore
	logger    zerolog.Logger
	interval  int
	maxErrors int
}

func NewProgressReporter(store db.JobStore, logger zerolog.Logger, interval, maxErrors int) *ProgressReporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &ProgressReporter{store: store, logger: logger, interval: interval, maxErrors: maxErrors}
}

// Due reports whether a progress write is owed after processed items
func (pr *ProgressReporter) Due(processed int) bool {
	return processed > 0 && processed%pr.interval == 0
}

// Cap truncates errs to the retained prefix
func (pr *ProgressReporter) Cap(errs []models.ItemError) []models.ItemError {
	if len(errs) > pr.maxErrors {
		errs = errs[:pr.maxErrors]
	}
	out := make([]models.ItemError, len(errs))
	copy(out, errs)
	return out
}

// ReportProgress persists a snapshot. A failed write is logged and returned;
// callers treat it as non-fatal.
func (pr *ProgressReporter) ReportProgress(ctx context.Context, id primitive.ObjectID, processed, successCount, errorCount int, errs []models.ItemError) error {
	err := pr.store.SaveProgress(ctx, id, models.Progress{
		ProcessedItems: processed,
		SuccessCount:   successCount,
		ErrorCount:     errorCount,
		Errors:         pr.Cap(errs),
	})
	if err != nil {
		pr.logger.Warn().Err(err).Str("job_id", id.Hex()).Int("processed", processed).Msg("failed to report progress")
		return err
	}
	return nil
}
