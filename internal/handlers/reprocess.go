package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/queue"
)

// BatchReprocessor runs a reprocessing sweep synchronously.
type BatchReprocessor interface {
	Run(ctx context.Context, userID *uuid.UUID) (int, error)
}

// ReprocessHandler triggers reprocessing of stored unprocessed emails.
type ReprocessHandler struct {
	reprocessor BatchReprocessor
	jobQueue    queue.JobQueue
	logger      *zap.Logger
}

func NewReprocessHandler(reprocessor BatchReprocessor, jobQueue queue.JobQueue, log *zap.Logger) *ReprocessHandler {
	return &ReprocessHandler{reprocessor: reprocessor, jobQueue: jobQueue, logger: log}
}

// ReprocessRequest optionally narrows the sweep to one user, and chooses
// between running inline and enqueueing a background job.
type ReprocessRequest struct {
	UserID *uuid.UUID `json:"user_id"`
	Async  bool       `json:"async"`
}

// Reprocess handles POST /reprocess.
func (h *ReprocessHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	var req ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}

	if req.Async {
		job := queue.NewJob(queue.JobTypeReprocessEmails, req.UserID)
		if err := h.jobQueue.Enqueue(r.Context(), job); err != nil {
			h.logger.Error("failed_to_enqueue_reprocess_job", zap.Error(err))
			respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to enqueue job")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID})
		return
	}

	processed, err := h.reprocessor.Run(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("reprocess_sweep_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Reprocessing sweep failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"processed": processed})
}
