package reconciler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/models"
)

// Applied records what a policy changed, so the finalization step can be
// compensated if it fails. Removed holds the pre-change rows verbatim.
type Applied struct {
	Inserted []*models.Task
	Removed  []*models.Task
}

// Policy decides how the model's task list is merged into the user's open
// tasks. The policy also shapes the prompt: its instruction tells the model
// what its output is expected to cover.
type Policy interface {
	Name() string
	Instruction() string
	Apply(ctx context.Context, tasks database.TaskRepositoryInterface, userID uuid.UUID, existing, incoming []*models.Task) (*Applied, error)
}

const (
	PolicyReplaceAll = "replace_all"
	PolicyAppendOnly = "append_only"
)

// NewPolicy maps a configured policy name to its implementation.
func NewPolicy(name string) (Policy, error) {
	switch name {
	case PolicyReplaceAll, "":
		return &replaceAllPolicy{}, nil
	case PolicyAppendOnly:
		return &appendOnlyPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown reconcile policy %q", name)
	}
}

// replaceAllPolicy treats the model output as the user's complete open
// task list: existing open tasks are removed and the new list takes their
// place. An insert failure restores the removed rows before returning.
type replaceAllPolicy struct{}

func (p *replaceAllPolicy) Name() string { return PolicyReplaceAll }

func (p *replaceAllPolicy) Instruction() string {
	return "Return the complete updated list of open tasks: carry over existing tasks that are still relevant, merge in anything new from the email, and drop tasks the email makes obsolete."
}

func (p *replaceAllPolicy) Apply(ctx context.Context, tasks database.TaskRepositoryInterface, userID uuid.UUID, existing, incoming []*models.Task) (*Applied, error) {
	if len(existing) > 0 {
		ids := make([]int64, len(existing))
		for i, t := range existing {
			ids[i] = t.ID
		}
		if err := tasks.DeleteByIDs(ctx, ids); err != nil {
			return nil, stageErr(StageApply, fmt.Errorf("failed to remove existing tasks: %w", err))
		}
	}

	if err := tasks.InsertBatch(ctx, incoming); err != nil {
		// Put the old list back so a failed insert does not wipe the user's
		// tasks. Restored rows get fresh ids.
		if restoreErr := tasks.InsertBatch(ctx, stripIDs(existing)); restoreErr != nil {
			return nil, stageErr(StageRollback, fmt.Errorf("insert failed (%v) and restore failed: %w", err, restoreErr))
		}
		return nil, stageErr(StageApply, fmt.Errorf("failed to insert new tasks: %w", err))
	}

	return &Applied{Inserted: incoming, Removed: existing}, nil
}

// appendOnlyPolicy never touches existing tasks: the model is asked for
// only the new tasks found in the email, and those are added as-is.
type appendOnlyPolicy struct{}

func (p *appendOnlyPolicy) Name() string { return PolicyAppendOnly }

func (p *appendOnlyPolicy) Instruction() string {
	return "Return only tasks that are new in this email and not already covered by the existing tasks. Do not repeat or modify existing tasks."
}

func (p *appendOnlyPolicy) Apply(ctx context.Context, tasks database.TaskRepositoryInterface, userID uuid.UUID, existing, incoming []*models.Task) (*Applied, error) {
	if err := tasks.InsertBatch(ctx, incoming); err != nil {
		return nil, stageErr(StageApply, fmt.Errorf("failed to insert new tasks: %w", err))
	}
	return &Applied{Inserted: incoming}, nil
}

// stripIDs clones tasks with their ids cleared so the database assigns new
// ones on re-insert.
func stripIDs(tasks []*models.Task) []*models.Task {
	out := make([]*models.Task, len(tasks))
	for i, t := range tasks {
		clone := *t
		clone.ID = 0
		out[i] = &clone
	}
	return out
}
