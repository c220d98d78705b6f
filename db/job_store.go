package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bulkjobs/models"

	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoJobStore keeps bulk job records in a MongoDB collection
type MongoJobStore struct {
	jobsCol *mongo.Collection
}

// NewMongoJobStore creates a job store over the given collection
func NewMongoJobStore(jobsCollection *mongo.Collection) *MongoJobStore {
	return &MongoJobStore{jobsCol: jobsCollection}
}

func (s *MongoJobStore) InsertJob(ctx context.Context, job *models.BulkJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	if job.Errors == nil {
		job.Errors = []models.ItemError{}
	}
	if _, err := s.jobsCol.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *MongoJobStore) TransitionJob(ctx context.Context, id primitive.ObjectID, from []models.JobStatus, to models.JobStatus) (bool, error) {
	res, err := s.jobsCol.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update job %s to %s: %w", id.Hex(), to, err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoJobStore) SaveProgress(ctx context.Context, id primitive.ObjectID, progress models.Progress) error {
	errs := progress.Errors
	if errs == nil {
		errs = []models.ItemError{}
	}
	_, err := s.jobsCol.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusProcessing},
		bson.M{"$set": bson.M{
			"processedItems": progress.ProcessedItems,
			"successCount":   progress.SuccessCount,
			"errorCount":     progress.ErrorCount,
			"errors":         errs,
			"updatedAt":      time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to save progress for job %s: %w", id.Hex(), err)
	}
	return nil
}

func (s *MongoJobStore) FinishJob(ctx context.Context, id primitive.ObjectID, outcome models.Outcome) (bool, error) {
	errs := outcome.Errors
	if errs == nil {
		errs = []models.ItemError{}
	}
	set := bson.M{
		"status":         outcome.Status,
		"processedItems": outcome.ProcessedItems,
		"successCount":   outcome.SuccessCount,
		"errorCount":     outcome.ErrorCount,
		"errors":         errs,
		"completedAt":    outcome.CompletedAt,
		"updatedAt":      time.Now(),
	}
	if outcome.Duration != nil {
		set["duration"] = *outcome.Duration
	}
	res, err := s.jobsCol.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": activeStatuses}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to finalize job %s: %w", id.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoJobStore) AbortJob(ctx context.Context, id primitive.ObjectID, errs []models.ItemError, at time.Time) (bool, error) {
	res, err := s.jobsCol.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": activeStatuses}},
		bson.M{"$set": bson.M{
			"status":      models.StatusFailed,
			"errors":      errs,
			"completedAt": at,
			"updatedAt":   time.Now(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark job %s as failed: %w", id.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoJobStore) FindJob(ctx context.Context, id primitive.ObjectID) (mo.Option[*models.BulkJob], error) {
	var job models.BulkJob
	err := s.jobsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mo.None[*models.BulkJob](), nil
		}
		return mo.None[*models.BulkJob](), fmt.Errorf("failed to find job %s: %w", id.Hex(), err)
	}
	return mo.Some(&job), nil
}

// ListJobs returns the newest jobs first
func (s *MongoJobStore) ListJobs(ctx context.Context, limit int64) ([]models.BulkJob, error) {
	opts := options.Find().SetLimit(limit).SetSort(bson.M{"createdAt": -1})
	cursor, err := s.jobsCol.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer cursor.Close(ctx)

	jobs := []models.BulkJob{}
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}
	return jobs, nil
}
