package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"bulkjobs/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Requires a MongoDB server; set MONGO_TEST_URI to run. Transaction tests
// also need MONGO_TEST_TRANSACTIONS=true and a replica set.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	client, err := ConnectMongoDB(ctx, uri, 10*time.Second)
	require.NoError(t, err)

	database := client.Database("bulkjobs_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = DisconnectMongoDB(client)
	})
	return database
}

func TestMongoDocumentStore_CommitsFullBatch(t *testing.T) {
	ctx := context.Background()
	store := NewMongoDocumentStore(testDatabase(t), false)

	b := store.NewBatch("products")
	for i := 0; i < store.MaxBatchSize(); i++ {
		require.NoError(t, b.Set(fmt.Sprintf("p-%03d", i), map[string]interface{}{"name": "Chair", "price": 10.0}))
	}
	assert.ErrorIs(t, b.Delete("p-000"), ErrBatchFull)
	require.NoError(t, b.Commit(ctx))
	assert.Equal(t, 0, b.Len())

	n, err := store.database.Collection("products").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(MaxWriteBatchSize), n)

	exists, err := store.Exists(ctx, "products", "p-499")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.Exists(ctx, "products", "p-500")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMongoDocumentStore_SetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMongoDocumentStore(testDatabase(t), false)
	coll := store.database.Collection("reviews")

	b := store.NewBatch("reviews")
	require.NoError(t, b.Set("r1", map[string]interface{}{"status": "pending", "rating": 4}))
	require.NoError(t, b.Set("r2", map[string]interface{}{"status": "pending"}))
	require.NoError(t, b.Commit(ctx))

	require.NoError(t, b.Update("r1", map[string]interface{}{"status": "approved"}))
	require.NoError(t, b.Delete("r2"))
	require.NoError(t, b.Commit(ctx))

	var doc bson.M
	require.NoError(t, coll.FindOne(ctx, bson.M{"_id": "r1"}).Decode(&doc))
	assert.Equal(t, "approved", doc["status"])
	assert.EqualValues(t, 4, doc["rating"])

	n, err := coll.CountDocuments(ctx, bson.M{"_id": "r2"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMongoDocumentStore_FailedTransactionAppliesNothing(t *testing.T) {
	if os.Getenv("MONGO_TEST_TRANSACTIONS") != "true" {
		t.Skip("MONGO_TEST_TRANSACTIONS not set")
	}
	ctx := context.Background()
	store := NewMongoDocumentStore(testDatabase(t), true)
	coll := store.database.Collection("products")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sku", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	require.NoError(t, err)

	b := store.NewBatch("products")
	require.NoError(t, b.Set("p1", map[string]interface{}{"sku": "S-1"}))
	require.NoError(t, b.Set("p2", map[string]interface{}{"sku": "S-1"}))
	require.Error(t, b.Commit(ctx))

	n, err := coll.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMongoJobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	database := testDatabase(t)
	jobs := GetJobsCollection(database, "bulk_jobs")
	require.NoError(t, EnsureJobIndexes(ctx, jobs))
	store := NewMongoJobStore(jobs)

	job := &models.BulkJob{Status: models.StatusPending, TotalItems: 2, CreatedAt: time.Now()}
	require.NoError(t, store.InsertJob(ctx, job))

	// progress is only written while processing
	require.NoError(t, store.SaveProgress(ctx, job.ID, models.Progress{ProcessedItems: 1, SuccessCount: 1}))
	found, err := store.FindJob(ctx, job.ID)
	require.NoError(t, err)
	stored, ok := found.Get()
	require.True(t, ok)
	assert.Equal(t, 0, stored.ProcessedItems)
	assert.Equal(t, []models.ItemError{}, stored.Errors)

	ok, err = store.TransitionJob(ctx, job.ID, []models.JobStatus{models.StatusPending}, models.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	errs := []models.ItemError{{ItemID: "p2", Message: "Item not found"}}
	require.NoError(t, store.SaveProgress(ctx, job.ID, models.Progress{ProcessedItems: 2, SuccessCount: 1, ErrorCount: 1, Errors: errs}))

	duration := int64(3)
	ok, err = store.FinishJob(ctx, job.ID, models.Outcome{
		Status:         models.StatusCompleted,
		ProcessedItems: 2,
		SuccessCount:   1,
		ErrorCount:     1,
		Errors:         errs,
		CompletedAt:    time.Now(),
		Duration:       &duration,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	// terminal jobs are not moved again
	ok, err = store.TransitionJob(ctx, job.ID, []models.JobStatus{models.StatusPending, models.StatusProcessing}, models.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.FinishJob(ctx, job.ID, models.Outcome{Status: models.StatusFailed, CompletedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.AbortJob(ctx, job.ID, []models.ItemError{{ItemID: models.SystemItemID, Message: "boom"}}, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	found, err = store.FindJob(ctx, job.ID)
	require.NoError(t, err)
	stored, ok = found.Get()
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, errs, stored.Errors)
	require.NotNil(t, stored.Duration)
	assert.Equal(t, duration, *stored.Duration)
	assert.NotNil(t, stored.CompletedAt)
}

func TestMongoJobStore_FindAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMongoJobStore(GetJobsCollection(testDatabase(t), "bulk_jobs"))

	found, err := store.FindJob(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	assert.False(t, found.IsPresent())

	base := time.Now().Add(-time.Hour)
	var ids []primitive.ObjectID
	for i := 0; i < 3; i++ {
		job := &models.BulkJob{Status: models.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, store.InsertJob(ctx, job))
		ids = append(ids, job.ID)
	}

	jobs, err := store.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
}
