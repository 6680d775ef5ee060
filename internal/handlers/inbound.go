package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/intake"
	"github.com/mailtasker/mailtasker/internal/middleware"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/queue"
	"github.com/mailtasker/mailtasker/internal/reconciler"
	"github.com/mailtasker/mailtasker/internal/validation"
)

// DedupGate reports whether an inbound message was already accepted.
// MarkAccepted is called once the email row is durable so retries of a
// failed delivery are never mistaken for duplicates.
type DedupGate interface {
	Seen(ctx context.Context, id intake.EmailIdentity) (bool, error)
	MarkAccepted(ctx context.Context, id intake.EmailIdentity)
}

// EmailReconciler is the slice of the reconciler the handler needs.
type EmailReconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*reconciler.Result, error)
}

// InboundEmailHandler accepts provider webhooks for new mail and drives
// each accepted message through task extraction.
type InboundEmailHandler struct {
	emails       database.RawEmailRepositoryInterface
	budgets      database.BudgetRepositoryInterface
	gate         DedupGate
	reconciler   EmailReconciler
	jobQueue     queue.JobQueue
	textMinRatio float64
	logger       *zap.Logger
}

func NewInboundEmailHandler(emails database.RawEmailRepositoryInterface, budgets database.BudgetRepositoryInterface, gate DedupGate, rec EmailReconciler, jobQueue queue.JobQueue, textMinRatio float64, log *zap.Logger) *InboundEmailHandler {
	if textMinRatio <= 0 {
		textMinRatio = intake.DefaultTextBodyMinRatio
	}
	return &InboundEmailHandler{
		emails:       emails,
		budgets:      budgets,
		gate:         gate,
		reconciler:   rec,
		jobQueue:     jobQueue,
		textMinRatio: textMinRatio,
		logger:       log,
	}
}

// InboundEmailRequest is the webhook payload for one delivered message.
type InboundEmailRequest struct {
	FromEmail    *string         `json:"from_email" validate:"omitempty,email"`
	ToEmail      *string         `json:"to_email" validate:"omitempty,email"`
	Subject      *string         `json:"subject" validate:"omitempty,max=2000"`
	TextBody     *string         `json:"text_body"`
	HTMLBody     *string         `json:"html_body"`
	MessageID    *string         `json:"message_id" validate:"omitempty,max=1000"`
	SentAt       *time.Time      `json:"sent_at"`
	ProviderMeta json.RawMessage `json:"provider_meta"`
}

// Receive handles POST /inbound-email.
func (h *InboundEmailHandler) Receive(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req InboundEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}
	if err := validation.Validate.Struct(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if emptyBody(req.TextBody) && emptyBody(req.HTMLBody) {
		respondJSONError(w, http.StatusBadRequest, "invalid_request", "Either text_body or html_body is required")
		return
	}
	if req.Subject != nil {
		clean := validation.SanitizeText(*req.Subject)
		req.Subject = &clean
	}

	identity := intake.EmailIdentity{
		MessageID: req.MessageID,
		From:      req.FromEmail,
		To:        req.ToEmail,
		Subject:   req.Subject,
		SentAt:    req.SentAt,
	}
	seen, err := h.gate.Seen(r.Context(), identity)
	if err != nil {
		h.logger.Error("dedup_check_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to check for duplicates")
		return
	}
	if seen {
		// Duplicates are acknowledged so the provider stops retrying.
		h.logger.Info("duplicate_email_ignored",
			zap.String("user_id", user.ID.String()),
		)
		respondJSON(w, http.StatusOK, map[string]any{"task_count": 0, "duplicate": true})
		return
	}

	email := &models.RawEmail{
		UserID:       user.ID,
		FromEmail:    req.FromEmail,
		ToEmail:      req.ToEmail,
		Subject:      req.Subject,
		TextBody:     req.TextBody,
		HTMLBody:     req.HTMLBody,
		ProviderMeta: req.ProviderMeta,
		SentAt:       req.SentAt,
		MessageID:    req.MessageID,
		Status:       models.EmailStatusUnprocessed,
	}
	if err := h.emails.Create(r.Context(), email); err != nil {
		h.logger.Error("email_store_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to store email")
		return
	}
	h.gate.MarkAccepted(r.Context(), identity)

	remaining, err := h.budgets.GetRemaining(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("budget_check_failed",
			zap.String("user_id", user.ID.String()),
			zap.Int64("email_id", email.ID),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to check budget")
		return
	}
	if remaining <= 0 {
		// The email is stored and will be picked up once the user has
		// budget again; schedule a sweep for after the next deposit.
		h.deferEmail(r.Context(), user.ID, email.ID)
		respondJSON(w, http.StatusOK, map[string]any{"task_count": 0, "status": "deferred"})
		return
	}

	body := intake.SelectBody(req.TextBody, req.HTMLBody, h.textMinRatio)
	result, err := h.reconciler.Reconcile(r.Context(), user.ID, email.ID, body)
	if err != nil {
		// The stored email stays unprocessed; a delayed job retries it.
		h.logger.Error("email_processing_failed",
			zap.String("user_id", user.ID.String()),
			zap.Int64("email_id", email.ID),
			zap.Error(err),
		)
		h.deferEmail(r.Context(), user.ID, email.ID)
		respondJSONError(w, http.StatusInternalServerError, "processing_failed", "Failed to extract tasks from email")
		return
	}

	if err := h.budgets.Decrement(r.Context(), user.ID, result.TotalCostNano); err != nil {
		if errors.Is(err, database.ErrInsufficientBudget) {
			h.logger.Warn("budget_overdrawn_after_processing",
				zap.String("user_id", user.ID.String()),
				zap.Int64("email_id", email.ID),
				zap.Int64("cost_nano_usd", result.TotalCostNano),
			)
		} else {
			h.logger.Error("budget_decrement_failed",
				zap.String("user_id", user.ID.String()),
				zap.Int64("email_id", email.ID),
				zap.Error(err),
			)
		}
	}

	h.logger.Info("email_processed",
		zap.String("user_id", user.ID.String()),
		zap.Int64("email_id", email.ID),
		zap.Int("tasks_before", result.TasksBefore),
		zap.Int("tasks_after", len(result.Tasks)),
		zap.Int64("cost_nano_usd", result.TotalCostNano),
	)
	respondJSON(w, http.StatusOK, map[string]any{"task_count": len(result.Tasks)})
}

// deferEmail schedules a delayed reprocessing sweep for the user.
func (h *InboundEmailHandler) deferEmail(ctx context.Context, userID uuid.UUID, emailID int64) {
	if h.jobQueue == nil {
		return
	}
	job := queue.NewJob(queue.JobTypeReprocessEmails, &userID)
	notBefore := time.Now().Add(15 * time.Minute)
	job.NotBefore = &notBefore
	if err := h.jobQueue.Enqueue(ctx, job); err != nil {
		h.logger.Warn("failed_to_schedule_retry_job",
			zap.String("user_id", userID.String()),
			zap.Int64("email_id", emailID),
			zap.Error(err),
		)
	}
}

func emptyBody(s *string) bool {
	return s == nil || *s == ""
}
