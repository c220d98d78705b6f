package services

import (
	"context"
	"errors"
	"testing"

	"bulkjobs/db"
	"bulkjobs/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newJobManager(t *testing.T) (*JobManager, *db.MemoryJobStore) {
	t.Helper()
	store := db.NewMemoryJobStore()
	return NewJobManager(store, zerolog.Nop()), store
}

func TestJobManager_CreateJob(t *testing.T) {
	jm, _ := newJobManager(t)
	ctx := context.Background()

	id, err := jm.CreateJob(ctx, models.OperationDelete, "delete", "products", 7, "admin-1")
	require.NoError(t, err)

	job, err := jm.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, 7, job.TotalItems)
	assert.Equal(t, "admin-1", job.RequestedBy)
	assert.Zero(t, job.ProcessedItems)
	assert.Zero(t, job.SuccessCount)
	assert.Zero(t, job.ErrorCount)
	assert.Empty(t, job.Errors)
	assert.False(t, job.StartedAt.IsZero())
	assert.Nil(t, job.CompletedAt)
}

func TestJobManager_CreateJobPropagatesStorageErrors(t *testing.T) {
	jm, store := newJobManager(t)
	store.InsertErr = errors.New("no reachable servers")

	_, err := jm.CreateJob(context.Background(), models.OperationDelete, "delete", "products", 1, "admin-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.InsertErr)
}

func TestJobManager_MarkProcessingIsIdempotent(t *testing.T) {
	jm, _ := newJobManager(t)
	ctx := context.Background()
	id, err := jm.CreateJob(ctx, models.OperationDelete, "delete", "products", 1, "admin-1")
	require.NoError(t, err)

	require.NoError(t, jm.MarkProcessing(ctx, id))
	require.NoError(t, jm.MarkProcessing(ctx, id))

	job, err := jm.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, job.Status)
}

func TestJobManager_Finalize(t *testing.T) {
	tests := []struct {
		name     string
		success  int
		failures int
		want     models.JobStatus
	}{
		{"all succeeded", 3, 0, models.StatusCompleted},
		{"partial", 1, 999, models.StatusCompleted},
		{"none succeeded", 0, 4, models.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm, _ := newJobManager(t)
			ctx := context.Background()
			id, err := jm.CreateJob(ctx, models.OperationUpdate, "update", "products", tt.success+tt.failures, "admin-1")
			require.NoError(t, err)
			require.NoError(t, jm.MarkProcessing(ctx, id))

			errs := []models.ItemError{{ItemID: "x", Message: "Item not found"}}
			status, err := jm.Finalize(ctx, id, tt.success, tt.failures, errs, 2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)

			job, err := jm.GetJob(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.Status)
			assert.Equal(t, tt.success+tt.failures, job.ProcessedItems)
			assert.Equal(t, errs, job.Errors)
			require.NotNil(t, job.Duration)
			assert.Equal(t, int64(2), *job.Duration)
			assert.NotNil(t, job.CompletedAt)
		})
	}
}

func TestJobManager_TerminalJobsStayTerminal(t *testing.T) {
	jm, _ := newJobManager(t)
	ctx := context.Background()
	id, err := jm.CreateJob(ctx, models.OperationDelete, "delete", "products", 1, "admin-1")
	require.NoError(t, err)
	require.NoError(t, jm.MarkProcessing(ctx, id))
	_, err = jm.Finalize(ctx, id, 1, 0, nil, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, jm.MarkProcessing(ctx, id), ErrInvalidTransition)
	_, err = jm.Finalize(ctx, id, 0, 1, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, jm.RecordFatalError(ctx, id, "boom"), ErrInvalidTransition)

	job, err := jm.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, job.Status)
}

func TestJobManager_RecordFatalError(t *testing.T) {
	jm, _ := newJobManager(t)
	ctx := context.Background()
	id, err := jm.CreateJob(ctx, models.OperationImport, "import", "products", 10, "admin-1")
	require.NoError(t, err)

	require.NoError(t, jm.RecordFatalError(ctx, id, "invalid collection"))

	job, err := jm.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, []models.ItemError{{ItemID: "system", Message: "invalid collection"}}, job.Errors)
	assert.NotNil(t, job.CompletedAt)
}

func TestJobManager_GetJobNotFound(t *testing.T) {
	jm, _ := newJobManager(t)
	_, err := jm.GetJob(context.Background(), primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrJobNotFound)
}
