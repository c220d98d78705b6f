package db

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"bulkjobs/models"

	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryDocumentStore is an in-process DocumentStore. It records every commit
// so batching can be checked.
type MemoryDocumentStore struct {
	mu       sync.Mutex
	limit    int
	docs     map[string]map[string]map[string]interface{}
	commits  map[string][]int
	failOn   int
	failErr  error
	nCommits int
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		limit:   MaxWriteBatchSize,
		docs:    make(map[string]map[string]map[string]interface{}),
		commits: make(map[string][]int),
	}
}

// Put seeds a document
func (s *MemoryDocumentStore) Put(collection, id string, doc map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = copyDoc(doc)
}

// Get returns a copy of a stored document
func (s *MemoryDocumentStore) Get(collection, id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, false
	}
	return copyDoc(doc), true
}

// Count returns the number of documents in a collection
func (s *MemoryDocumentStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

// Commits returns the size of every successful commit against a collection, in order
func (s *MemoryDocumentStore) Commits(collection string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commits[collection])
}

// FailCommit makes the n-th commit (1-based, across collections) return err
func (s *MemoryDocumentStore) FailCommit(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn, s.failErr = n, err
}

func (s *MemoryDocumentStore) Exists(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[collection][id]
	return ok, nil
}

func (s *MemoryDocumentStore) NewBatch(collection string) WriteBatch {
	return &memoryBatch{store: s, collection: collection}
}

func (s *MemoryDocumentStore) MaxBatchSize() int {
	return s.limit
}

func (s *MemoryDocumentStore) collection(name string) map[string]map[string]interface{} {
	c, ok := s.docs[name]
	if !ok {
		c = make(map[string]map[string]interface{})
		s.docs[name] = c
	}
	return c
}

type memoryOp struct {
	kind   string
	id     string
	fields map[string]interface{}
}

type memoryBatch struct {
	store      *MemoryDocumentStore
	collection string
	ops        []memoryOp
}

func (b *memoryBatch) stage(op memoryOp) error {
	if len(b.ops) >= b.store.MaxBatchSize() {
		return ErrBatchFull
	}
	b.ops = append(b.ops, op)
	return nil
}

func (b *memoryBatch) Set(id string, doc map[string]interface{}) error {
	return b.stage(memoryOp{kind: "set", id: id, fields: copyDoc(doc)})
}

func (b *memoryBatch) Update(id string, fields map[string]interface{}) error {
	return b.stage(memoryOp{kind: "update", id: id, fields: copyDoc(fields)})
}

func (b *memoryBatch) Delete(id string) error {
	return b.stage(memoryOp{kind: "delete", id: id})
}

func (b *memoryBatch) Len() int {
	return len(b.ops)
}

// Commit applies all staged ops or none of them
func (b *memoryBatch) Commit(_ context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := b.ops
	b.ops = nil
	s.nCommits++
	if s.failOn > 0 && s.nCommits == s.failOn {
		return fmt.Errorf("failed to commit %d writes to %s: %w", len(ops), b.collection, s.failErr)
	}

	coll := s.collection(b.collection)
	for _, op := range ops {
		switch op.kind {
		case "set":
			coll[op.id] = op.fields
		case "update":
			doc, ok := coll[op.id]
			if !ok {
				continue
			}
			for k, v := range op.fields {
				doc[k] = v
			}
		case "delete":
			delete(coll, op.id)
		}
	}
	s.commits[b.collection] = append(s.commits[b.collection], len(ops))
	return nil
}

func copyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// MemoryJobStore is an in-process JobStore that also keeps every progress
// write for inspection.
type MemoryJobStore struct {
	mu       sync.Mutex
	jobs     map[primitive.ObjectID]*models.BulkJob
	order    []primitive.ObjectID
	progress map[primitive.ObjectID][]models.Progress
	// InsertErr, when set, is returned by InsertJob
	InsertErr error
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:     make(map[primitive.ObjectID]*models.BulkJob),
		progress: make(map[primitive.ObjectID][]models.Progress),
	}
}

func (s *MemoryJobStore) InsertJob(_ context.Context, job *models.BulkJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return fmt.Errorf("failed to insert job: %w", s.InsertErr)
	}
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	if job.Errors == nil {
		job.Errors = []models.ItemError{}
	}
	stored := cloneJob(job)
	s.jobs[job.ID] = stored
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemoryJobStore) TransitionJob(_ context.Context, id primitive.ObjectID, from []models.JobStatus, to models.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || !slices.Contains(from, job.Status) {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryJobStore) SaveProgress(_ context.Context, id primitive.ObjectID, progress models.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.StatusProcessing {
		return nil
	}
	job.ProcessedItems = progress.ProcessedItems
	job.SuccessCount = progress.SuccessCount
	job.ErrorCount = progress.ErrorCount
	job.Errors = slices.Clone(progress.Errors)
	job.UpdatedAt = time.Now()
	progress.Errors = slices.Clone(progress.Errors)
	s.progress[id] = append(s.progress[id], progress)
	return nil
}

func (s *MemoryJobStore) FinishJob(_ context.Context, id primitive.ObjectID, outcome models.Outcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = outcome.Status
	job.ProcessedItems = outcome.ProcessedItems
	job.SuccessCount = outcome.SuccessCount
	job.ErrorCount = outcome.ErrorCount
	job.Errors = slices.Clone(outcome.Errors)
	if job.Errors == nil {
		job.Errors = []models.ItemError{}
	}
	completed := outcome.CompletedAt
	job.CompletedAt = &completed
	if outcome.Duration != nil {
		d := *outcome.Duration
		job.Duration = &d
	}
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryJobStore) AbortJob(_ context.Context, id primitive.ObjectID, errs []models.ItemError, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = models.StatusFailed
	job.Errors = slices.Clone(errs)
	job.CompletedAt = &at
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryJobStore) FindJob(_ context.Context, id primitive.ObjectID) (mo.Option[*models.BulkJob], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return mo.None[*models.BulkJob](), nil
	}
	return mo.Some(cloneJob(job)), nil
}

func (s *MemoryJobStore) ListJobs(_ context.Context, limit int64) ([]models.BulkJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := []models.BulkJob{}
	for i := len(s.order) - 1; i >= 0 && int64(len(jobs)) < limit; i-- {
		jobs = append(jobs, *cloneJob(s.jobs[s.order[i]]))
	}
	return jobs, nil
}

// ProgressWrites returns every progress snapshot saved for a job, in order
func (s *MemoryJobStore) ProgressWrites(id primitive.ObjectID) []models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.progress[id])
}

func cloneJob(job *models.BulkJob) *models.BulkJob {
	c := *job
	c.Errors = slices.Clone(job.Errors)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	if job.Duration != nil {
		d := *job.Duration
		c.Duration = &d
	}
	return &c
}
