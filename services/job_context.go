package services

import (
	"strings"
	"time"

	"bulkjobs/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BulkJobContext is the state of one bulk run. It is owned by the single
// goroutine executing the job and passed by pointer through each step.
type BulkJobContext struct {
	JobID       primitive.ObjectID
	Request     models.BulkRequest
	RequestedBy string
	ActionName  string
	Action      Action
	// ActionErr is set when the keyword has no typed form; every item then
	// fails with it.
	ActionErr  error
	Collection string
	Physical   string
	Items      []models.Item
	StartedAt  time.Time

	succeeded []string
	failed    []models.ItemError
}

func newBulkJobContext(id primitive.ObjectID, req models.BulkRequest, requestedBy string) *BulkJobContext {
	action, err := ParseAction(req.ActionName(), req.Data, req.Options)
	return &BulkJobContext{
		JobID:       id,
		Request:     req,
		RequestedBy: requestedBy,
		ActionName:  req.ActionName(),
		Action:      action,
		ActionErr:   err,
		Collection:  normalizeCollection(req.Collection),
		Items:       req.NormalizedItems(),
		succeeded:   []string{},
		failed:      []models.ItemError{},
	}
}

// normalizeCollection is the one form of a logical collection name used for
// resolution, validation, the job record and metrics
func normalizeCollection(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (bc *BulkJobContext) recordSuccess(id string) {
	bc.succeeded = append(bc.succeeded, id)
}

func (bc *BulkJobContext) recordFailure(id string, err error) {
	bc.failed = append(bc.failed, models.ItemError{ItemID: id, Message: err.Error()})
}

func (bc *BulkJobContext) Processed() int    { return len(bc.succeeded) + len(bc.failed) }
func (bc *BulkJobContext) SuccessCount() int { return len(bc.succeeded) }
func (bc *BulkJobContext) ErrorCount() int   { return len(bc.failed) }

// Failures returns every failure in encounter order, uncapped
func (bc *BulkJobContext) Failures() []models.ItemError {
	return bc.failed
}

// Result builds the synchronous response for a finished run
func (bc *BulkJobContext) Result(status models.JobStatus, duration int64) *models.BulkResult {
	failed := make([]models.FailedItem, 0, len(bc.failed))
	for _, e := range bc.failed {
		failed = append(failed, models.FailedItem{ID: e.ItemID, Error: e.Message})
	}
	succeeded := make([]string, len(bc.succeeded))
	copy(succeeded, bc.succeeded)

	return &models.BulkResult{
		Success: true,
		Action:  bc.ActionName,
		JobID:   bc.JobID.Hex(),
		Status:  status,
		Results: models.ItemResults{Success: succeeded, Failed: failed},
		Summary: models.Summary{
			Total:     len(bc.Items),
			Succeeded: len(bc.succeeded),
			Failed:    len(bc.failed),
		},
		Duration: duration,
	}
}
