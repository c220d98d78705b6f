package db

import (
	"context"
	"errors"
	"time"

	"bulkjobs/models"

	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxWriteBatchSize is the most mutations one batch commit may carry
const MaxWriteBatchSize = 500

// ErrBatchFull is returned when staging beyond MaxBatchSize without a commit
var ErrBatchFull = errors.New("write batch is full")

// WriteBatch stages mutations against one collection and applies them in a
// single Commit. Whether a failed Commit may leave a prefix of the batch
// applied depends on the store; MemoryDocumentStore and a transactional
// MongoDocumentStore apply nothing. Either way the batch is empty afterwards.
type WriteBatch interface {
	Set(id string, doc map[string]interface{}) error
	Update(id string, fields map[string]interface{}) error
	Delete(id string) error
	Len() int
	Commit(ctx context.Context) error
}

// DocumentStore is the target store bulk jobs mutate
type DocumentStore interface {
	Exists(ctx context.Context, collection, id string) (bool, error)
	NewBatch(collection string) WriteBatch
	MaxBatchSize() int
}

// JobStore persists bulk job records. Conditional writes report whether the
// job was in one of the allowed states.
type JobStore interface {
	InsertJob(ctx context.Context, job *models.BulkJob) error
	TransitionJob(ctx context.Context, id primitive.ObjectID, from []models.JobStatus, to models.JobStatus) (bool, error)
	SaveProgress(ctx context.Context, id primitive.ObjectID, progress models.Progress) error
	FinishJob(ctx context.Context, id primitive.ObjectID, outcome models.Outcome) (bool, error)
	AbortJob(ctx context.Context, id primitive.ObjectID, errs []models.ItemError, at time.Time) (bool, error)
	FindJob(ctx context.Context, id primitive.ObjectID) (mo.Option[*models.BulkJob], error)
	ListJobs(ctx context.Context, limit int64) ([]models.BulkJob, error)
}

// activeStatuses are the states a job can still leave
var activeStatuses = []models.JobStatus{models.StatusPending, models.StatusProcessing}
