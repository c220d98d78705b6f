package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus is the lifecycle state of a bulk job
type JobStatus string

// Valid statuses for a bulk job
const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OperationType is the kind of mutation applied to every item of a job
type OperationType string

const (
	OperationUpdate       OperationType = "update"
	OperationDelete       OperationType = "delete"
	OperationImport       OperationType = "import"
	OperationCustomAction OperationType = "custom-action"
)

// SystemItemID marks an error entry that belongs to the run rather than to an item
const SystemItemID = "system"

// ItemError is one recorded per-item failure
type ItemError struct {
	ItemID  string `bson:"itemId" json:"itemId"`
	Message string `bson:"message" json:"message"`
}

// BulkJob tracks progress and outcome of one bulk operation request
type BulkJob struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OperationType    OperationType      `bson:"operationType" json:"operationType"`
	Action           string             `bson:"action" json:"action"`
	TargetCollection string             `bson:"targetCollection" json:"targetCollection"`
	RequestedBy      string             `bson:"requestedBy" json:"requestedBy"`
	Status           JobStatus          `bson:"status" json:"status"`
	TotalItems       int                `bson:"totalItems" json:"totalItems"`
	ProcessedItems   int                `bson:"processedItems" json:"processedItems"`
	SuccessCount     int                `bson:"successCount" json:"successCount"`
	ErrorCount       int                `bson:"errorCount" json:"errorCount"`
	Errors           []ItemError        `bson:"errors" json:"errors"`
	StartedAt        time.Time          `bson:"startedAt" json:"startedAt"`
	CompletedAt      *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Duration         *int64             `bson:"duration,omitempty" json:"duration,omitempty"` // seconds
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Progress is the incremental counter snapshot written while a job runs
type Progress struct {
	ProcessedItems int
	SuccessCount   int
	ErrorCount     int
	Errors         []ItemError
}

// Outcome is the terminal write applied to a job
type Outcome struct {
	Status         JobStatus
	ProcessedItems int
	SuccessCount   int
	ErrorCount     int
	Errors         []ItemError
	CompletedAt    time.Time
	Duration       *int64
}
