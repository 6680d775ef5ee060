// Package reconciler turns one inbound email into an updated task list for
// its user: it queries the current open tasks, invokes the model, sanitizes
// the output, applies the configured merge policy, and finalizes the email
// record. Every mutation has a compensation path so a partial failure never
// leaves the user with a half-applied task list.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/logger"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/services/ai"
)

// ModelInvoker is the slice of the AI service the reconciler needs.
type ModelInvoker interface {
	Run(ctx context.Context, userID uuid.UUID, emailID *int64, userContent string) (*ai.Result, error)
	ParseTaskList(content string) []any
}

// Result reports a completed reconciliation. TotalCostNano is what the
// caller should charge against the user's budget.
type Result struct {
	Tasks          []*models.Task
	TasksBefore    int
	InputCostNano  int64
	OutputCostNano int64
	TotalCostNano  int64
	RawContent     string
}

type Reconciler struct {
	tasks   database.TaskRepositoryInterface
	emails  database.RawEmailRepositoryInterface
	invoker ModelInvoker
	policy  Policy
	logger  *zap.Logger
}

func New(tasks database.TaskRepositoryInterface, emails database.RawEmailRepositoryInterface, invoker ModelInvoker, policy Policy, log *zap.Logger) *Reconciler {
	return &Reconciler{
		tasks:   tasks,
		emails:  emails,
		invoker: invoker,
		policy:  policy,
		logger:  log,
	}
}

// Reconcile runs the full pipeline for one email. On any *Error the email
// record keeps its UNPROCESSED status and the user's task list is left as
// it was (compensations run before returning), so the email is safe to
// retry later.
func (r *Reconciler) Reconcile(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*Result, error) {
	existing, err := r.tasks.GetOpenByUser(ctx, userID)
	if err != nil {
		return nil, stageErr(StageQuery, fmt.Errorf("failed to load open tasks: %w", err))
	}

	userContent, err := buildUserContent(r.policy.Instruction(), existing, emailText)
	if err != nil {
		return nil, stageErr(StageQuery, err)
	}

	res, err := r.invoker.Run(ctx, userID, &emailID, userContent)
	if err != nil {
		// An audit-row failure aborts too: a paid call must never proceed
		// unlogged. The raw content is the only forensic trail, so keep it
		// in the log before failing.
		var logErr *ai.InvocationLogError
		if errors.As(err, &logErr) && res != nil {
			r.logger.Error("invocation_audit_write_failed",
				zap.String("user_id", userID.String()),
				zap.Int64("email_id", emailID),
				zap.String("model_content", logger.SanitizeDebugContent(res.Content)),
				zap.Error(err),
			)
		}
		return nil, stageErr(StageModel, err)
	}

	payloads := ai.SanitizeTasks(r.invoker.ParseTaskList(res.Content))
	incoming := make([]*models.Task, len(payloads))
	for i, p := range payloads {
		incoming[i] = taskFromPayload(userID, emailID, p)
	}

	applied, err := r.policy.Apply(ctx, r.tasks, userID, existing, incoming)
	if err != nil {
		r.logger.Error("task_list_update_failed",
			zap.String("user_id", userID.String()),
			zap.Int64("email_id", emailID),
			zap.String("policy", r.policy.Name()),
			zap.String("model_content", logger.SanitizeDebugContent(res.Content)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := r.emails.MarkProcessed(ctx, emailID, len(applied.Inserted), res.InputCostNano, res.OutputCostNano); err != nil {
		if rbErr := r.compensate(ctx, applied); rbErr != nil {
			return nil, stageErr(StageRollback, fmt.Errorf("finalize failed (%v) and rollback failed: %w", err, rbErr))
		}
		return nil, stageErr(StageFinalize, fmt.Errorf("failed to mark email processed: %w", err))
	}

	return &Result{
		Tasks:          applied.Inserted,
		TasksBefore:    len(existing),
		InputCostNano:  res.InputCostNano,
		OutputCostNano: res.OutputCostNano,
		TotalCostNano:  res.TotalCostNano,
		RawContent:     res.Content,
	}, nil
}

// compensate undoes an applied task list change: the inserted rows are
// removed and the replaced rows go back in.
func (r *Reconciler) compensate(ctx context.Context, applied *Applied) error {
	if len(applied.Inserted) > 0 {
		ids := make([]int64, len(applied.Inserted))
		for i, t := range applied.Inserted {
			ids[i] = t.ID
		}
		if err := r.tasks.DeleteByIDs(ctx, ids); err != nil {
			return fmt.Errorf("failed to remove inserted tasks: %w", err)
		}
	}
	if len(applied.Removed) > 0 {
		if err := r.tasks.InsertBatch(ctx, stripIDs(applied.Removed)); err != nil {
			return fmt.Errorf("failed to restore replaced tasks: %w", err)
		}
	}
	return nil
}

// buildUserContent assembles the user message: the policy's instruction,
// the current open tasks as JSON, then the email text verbatim.
func buildUserContent(instruction string, existing []*models.Task, emailText string) (string, error) {
	payloads := make([]models.TaskPayload, len(existing))
	for i, t := range existing {
		payloads[i] = t.Payload()
	}
	encoded, err := json.Marshal(payloads)
	if err != nil {
		return "", fmt.Errorf("failed to encode existing tasks: %w", err)
	}
	return instruction + "\n\nExisting tasks:\n" + string(encoded) + "\n\nEmail:\n" + emailText, nil
}

func taskFromPayload(userID uuid.UUID, emailID int64, p models.TaskPayload) *models.Task {
	return &models.Task{
		UserID:                  userID,
		EmailID:                 &emailID,
		Title:                   p.Title,
		Description:             p.Description,
		DueDate:                 p.DueDate,
		ConsequenceIfIgnore:     p.ConsequenceIfIgnore,
		ParentAction:            p.ParentAction,
		ParentRequirementLevel:  p.ParentRequirementLevel,
		StudentAction:           p.StudentAction,
		StudentRequirementLevel: p.StudentRequirementLevel,
		Status:                  models.TaskStatusOpen,
	}
}
