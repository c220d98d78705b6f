package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"bulkjobs/models"
	"bulkjobs/services"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewsCollection is the logical collection moderated by /reviews/bulk
const ReviewsCollection = "reviews"

// MaxRequestBodyBytes bounds a bulk request body
const MaxRequestBodyBytes = 10 << 20

// Dispatcher hands accepted async tasks to a background runner
type Dispatcher interface {
	Dispatch(ctx context.Context, task models.BulkTask) error
}

// BulkHandler handles HTTP requests for bulk operations
type BulkHandler struct {
	processor  *services.Processor
	dispatcher Dispatcher
	syncLimit  int
	maxBody    int64
	logger     zerolog.Logger
}

// NewBulkHandler creates a bulk handler. Requests with more than syncLimit
// items run in the background; syncLimit 0 runs everything in the call.
func NewBulkHandler(processor *services.Processor, dispatcher Dispatcher, syncLimit int, logger zerolog.Logger) *BulkHandler {
	return &BulkHandler{
		processor:  processor,
		dispatcher: dispatcher,
		syncLimit:  syncLimit,
		maxBody:    MaxRequestBodyBytes,
		logger:     logger,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId,omitempty"`
	Error   string `json:"error"`
}

type acceptedResponse struct {
	Success bool             `json:"success"`
	JobID   string           `json:"jobId"`
	Status  models.JobStatus `json:"status"`
}

// AdminBulk handles POST /admin/bulk - runs a generic bulk operation
func (bh *BulkHandler) AdminBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	req, ok := bh.decodeRequest(w, r)
	if !ok {
		return
	}
	bh.run(w, r, req)
}

// ReviewBulk handles POST /reviews/bulk - moderates reviews in bulk
func (bh *BulkHandler) ReviewBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	req, ok := bh.decodeRequest(w, r)
	if !ok {
		return
	}
	req.Collection = ReviewsCollection
	bh.run(w, r, req)
}

// decodeRequest reads a size-bounded bulk request body. On failure the error
// response has been written.
func (bh *BulkHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (models.BulkRequest, bool) {
	var req models.BulkRequest
	if err := models.DecodeJSON(http.MaxBytesReader(w, r.Body, bh.maxBody), &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "", "Request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, "", "Invalid request body")
		return req, false
	}
	return req, true
}

func (bh *BulkHandler) run(w http.ResponseWriter, r *http.Request, req models.BulkRequest) {
	log := zerolog.Ctx(r.Context())
	requestedBy := RequestorFrom(r)

	bc, err := bh.processor.Submit(r.Context(), req, requestedBy)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		log.Error().Err(err).Msg("failed to create bulk job")
		writeError(w, http.StatusInternalServerError, "", "Failed to create job")
		return
	}

	if req.Async || (bh.syncLimit > 0 && req.ItemCount() > bh.syncLimit) {
		bh.dispatch(w, r, bc, req, requestedBy)
		return
	}

	result, err := bh.processor.Execute(r.Context(), bc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, bc.JobID.Hex(), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (bh *BulkHandler) dispatch(w http.ResponseWriter, r *http.Request, bc *services.BulkJobContext, req models.BulkRequest, requestedBy string) {
	task := models.BulkTask{JobID: bc.JobID.Hex(), Request: req, RequestedBy: requestedBy}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := bh.dispatcher.Dispatch(ctx, task); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("job_id", task.JobID).Msg("failed to dispatch bulk job")
		if ferr := bh.processor.Jobs().RecordFatalError(context.WithoutCancel(r.Context()), bc.JobID, "failed to dispatch job: "+err.Error()); ferr != nil {
			zerolog.Ctx(r.Context()).Error().Err(ferr).Str("job_id", task.JobID).Msg("failed to mark undispatched job")
		}
		writeError(w, http.StatusServiceUnavailable, task.JobID, "Failed to schedule job")
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{Success: true, JobID: task.JobID, Status: models.StatusPending})
}

// GetJob handles GET /admin/bulk/jobs?id= - retrieves a job by ID
func (bh *BulkHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	jobIDStr := strings.TrimSpace(r.URL.Query().Get("id"))
	if jobIDStr == "" {
		writeError(w, http.StatusBadRequest, "", "Job ID is required")
		return
	}

	jobID, err := primitive.ObjectIDFromHex(jobIDStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "Invalid job ID format")
		return
	}

	job, err := bh.processor.Jobs().GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, jobIDStr, "Job not found")
		} else {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("job_id", jobIDStr).Msg("failed to find job")
			writeError(w, http.StatusInternalServerError, jobIDStr, "Failed to retrieve job")
		}
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /admin/bulk/jobs - lists the latest jobs (limit 50)
func (bh *BulkHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "", "Method not allowed")
		return
	}

	jobs, err := bh.processor.Jobs().ListJobs(r.Context(), 50)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list jobs")
		writeError(w, http.StatusInternalServerError, "", "Failed to retrieve jobs")
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, jobID, message string) {
	writeJSON(w, status, errorResponse{Success: false, JobID: jobID, Error: message})
}
