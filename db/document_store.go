package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDocumentStore applies bulk mutations to collections of one database.
// Documents are keyed by their string _id.
//
// With transactions enabled each batch commits inside a multi-document
// transaction, which needs a replica set or sharded cluster. Without them a
// batch is one ordered BulkWrite: a failure stops at the first bad write and
// the writes before it stay applied.
type MongoDocumentStore struct {
	database      *mongo.Database
	transactional bool
}

func NewMongoDocumentStore(database *mongo.Database, transactional bool) *MongoDocumentStore {
	return &MongoDocumentStore{database: database, transactional: transactional}
}

// Transactional reports whether a failed Commit is guaranteed to apply nothing
func (s *MongoDocumentStore) Transactional() bool {
	return s.transactional
}

func (s *MongoDocumentStore) Exists(ctx context.Context, collection, id string) (bool, error) {
	n, err := s.database.Collection(collection).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to look up %s/%s: %w", collection, id, err)
	}
	return n > 0, nil
}

func (s *MongoDocumentStore) NewBatch(collection string) WriteBatch {
	return &mongoBatch{
		coll:          s.database.Collection(collection),
		limit:         MaxWriteBatchSize,
		transactional: s.transactional,
	}
}

func (s *MongoDocumentStore) MaxBatchSize() int {
	return MaxWriteBatchSize
}

// mongoBatch stages write models for one ordered BulkWrite
type mongoBatch struct {
	coll          *mongo.Collection
	limit         int
	transactional bool
	writes        []mongo.WriteModel
}

func (b *mongoBatch) stage(m mongo.WriteModel) error {
	if len(b.writes) >= b.limit {
		return ErrBatchFull
	}
	b.writes = append(b.writes, m)
	return nil
}

func (b *mongoBatch) Set(id string, doc map[string]interface{}) error {
	replacement := bson.M{}
	for k, v := range doc {
		replacement[k] = v
	}
	replacement["_id"] = id
	return b.stage(mongo.NewReplaceOneModel().
		SetFilter(bson.M{"_id": id}).
		SetReplacement(replacement).
		SetUpsert(true))
}

func (b *mongoBatch) Update(id string, fields map[string]interface{}) error {
	return b.stage(mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": id}).
		SetUpdate(bson.M{"$set": bson.M(fields)}))
}

func (b *mongoBatch) Delete(id string) error {
	return b.stage(mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": id}))
}

func (b *mongoBatch) Len() int {
	return len(b.writes)
}

// Commit sends the staged writes as one ordered BulkWrite and empties the batch
func (b *mongoBatch) Commit(ctx context.Context) error {
	if len(b.writes) == 0 {
		return nil
	}
	writes := b.writes
	b.writes = nil

	var err error
	if b.transactional {
		err = b.commitInTransaction(ctx, writes)
	} else {
		_, err = b.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	}
	if err != nil {
		return fmt.Errorf("failed to commit %d writes to %s: %w", len(writes), b.coll.Name(), err)
	}
	return nil
}

func (b *mongoBatch) commitInTransaction(ctx context.Context, writes []mongo.WriteModel) error {
	session, err := b.coll.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return b.coll.BulkWrite(sc, writes, options.BulkWrite().SetOrdered(true))
	})
	return err
}
