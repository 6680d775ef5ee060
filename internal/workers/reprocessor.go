package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/intake"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/reconciler"
)

// EmailReconciler is the slice of the reconciler the reprocessor needs.
type EmailReconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*reconciler.Result, error)
}

// Reprocessor re-runs task extraction over stored emails that never made it
// through the pipeline, oldest first. Reconciliation is idempotent per
// email: a finalized email drops out of the unprocessed set, so running the
// reprocessor twice cannot double-apply an email.
type Reprocessor struct {
	emails       database.RawEmailRepositoryInterface
	budgets      database.BudgetRepositoryInterface
	reconciler   EmailReconciler
	textMinRatio float64
	logger       *zap.Logger
}

func NewReprocessor(emails database.RawEmailRepositoryInterface, budgets database.BudgetRepositoryInterface, rec EmailReconciler, textMinRatio float64, log *zap.Logger) *Reprocessor {
	if textMinRatio <= 0 {
		textMinRatio = intake.DefaultTextBodyMinRatio
	}
	return &Reprocessor{
		emails:       emails,
		budgets:      budgets,
		reconciler:   rec,
		textMinRatio: textMinRatio,
		logger:       log,
	}
}

// Run processes every unprocessed email, or only one user's when userID is
// set. A failure on one email is logged and skipped so the rest of the
// batch still runs; the failed email stays unprocessed for the next sweep.
// Returns the number of emails successfully reconciled.
func (r *Reprocessor) Run(ctx context.Context, userID *uuid.UUID) (int, error) {
	pending, err := r.emails.ListUnprocessed(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list unprocessed emails: %w", err)
	}

	processed := 0
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if ok := r.processOne(ctx, email); ok {
			processed++
		}
	}

	r.logger.Info("reprocessing_sweep_complete",
		zap.Int("pending", len(pending)),
		zap.Int("processed", processed),
	)
	return processed, nil
}

func (r *Reprocessor) processOne(ctx context.Context, email *models.RawEmail) bool {
	remaining, err := r.budgets.GetRemaining(ctx, email.UserID)
	if err != nil {
		r.logger.Error("budget_check_failed",
			zap.String("user_id", email.UserID.String()),
			zap.Int64("email_id", email.ID),
			zap.Error(err),
		)
		return false
	}
	if remaining <= 0 {
		r.logger.Info("skipping_email_no_budget",
			zap.String("user_id", email.UserID.String()),
			zap.Int64("email_id", email.ID),
		)
		return false
	}

	body := intake.SelectBody(email.TextBody, email.HTMLBody, r.textMinRatio)
	result, err := r.reconciler.Reconcile(ctx, email.UserID, email.ID, body)
	if err != nil {
		r.logger.Error("email_reprocessing_failed",
			zap.String("user_id", email.UserID.String()),
			zap.Int64("email_id", email.ID),
			zap.Error(err),
		)
		return false
	}

	if err := r.budgets.Decrement(ctx, email.UserID, result.TotalCostNano); err != nil {
		// The email is already finalized; an over-drawn ledger is logged
		// rather than unwound.
		if errors.Is(err, database.ErrInsufficientBudget) {
			r.logger.Warn("budget_overdrawn_after_processing",
				zap.String("user_id", email.UserID.String()),
				zap.Int64("email_id", email.ID),
				zap.Int64("cost_nano_usd", result.TotalCostNano),
			)
		} else {
			r.logger.Error("budget_decrement_failed",
				zap.String("user_id", email.UserID.String()),
				zap.Int64("email_id", email.ID),
				zap.Error(err),
			)
		}
	}

	r.logger.Info("email_reprocessed",
		zap.String("user_id", email.UserID.String()),
		zap.Int64("email_id", email.ID),
		zap.Int("tasks_before", result.TasksBefore),
		zap.Int("tasks_after", len(result.Tasks)),
		zap.Int64("cost_nano_usd", result.TotalCostNano),
	)
	return true
}
