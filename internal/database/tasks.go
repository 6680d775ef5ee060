package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mailtasker/mailtasker/internal/models"
)

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, user_id, email_id, title, description, due_date,
	consequence_if_ignore, parent_action, parent_requirement_level,
	student_action, student_requirement_level, status, created_at, updated_at`

// GetOpenByUser retrieves all open tasks for a user, oldest first.
// Only open tasks participate in reconciliation.
func (r *TaskRepository) GetOpenByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM user_tasks
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC
	`, taskColumns)

	rows, err := r.db.QueryContext(ctx, query, userID, models.TaskStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// InsertBatch inserts tasks one row at a time, filling in generated IDs.
// If any insert fails the already-inserted rows are left in place; the
// caller owns compensation (see the reconciler's rollback protocol).
func (r *TaskRepository) InsertBatch(ctx context.Context, tasks []*models.Task) error {
	query := `
		INSERT INTO user_tasks (user_id, email_id, title, description, due_date,
			consequence_if_ignore, parent_action, parent_requirement_level,
			student_action, student_requirement_level, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	for i, task := range tasks {
		status := task.Status
		if status == "" {
			status = models.TaskStatusOpen
		}
		err := r.db.QueryRowContext(ctx, query,
			task.UserID,
			task.EmailID,
			task.Title,
			task.Description,
			task.DueDate,
			task.ConsequenceIfIgnore,
			enumOrNil(task.ParentAction),
			enumOrNil(task.ParentRequirementLevel),
			enumOrNil(task.StudentAction),
			enumOrNil(task.StudentRequirementLevel),
			status,
		).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert task %d of %d: %w", i+1, len(tasks), err)
		}
		task.Status = status
	}

	return nil
}

// DeleteByIDs deletes exactly the given task rows by primary key.
// Deleting by key rather than re-querying avoids racing against tasks
// that changed between fetch and delete.
func (r *TaskRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM user_tasks WHERE id = ANY($1)`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	task := &models.Task{}
	var parentAction, parentLevel, studentAction, studentLevel *string

	err := s.Scan(
		&task.ID,
		&task.UserID,
		&task.EmailID,
		&task.Title,
		&task.Description,
		&task.DueDate,
		&task.ConsequenceIfIgnore,
		&parentAction,
		&parentLevel,
		&studentAction,
		&studentLevel,
		&task.Status,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentAction != nil {
		v := models.ParentAction(*parentAction)
		task.ParentAction = &v
	}
	if parentLevel != nil {
		v := models.RequirementLevel(*parentLevel)
		task.ParentRequirementLevel = &v
	}
	if studentAction != nil {
		v := models.StudentAction(*studentAction)
		task.StudentAction = &v
	}
	if studentLevel != nil {
		v := models.RequirementLevel(*studentLevel)
		task.StudentRequirementLevel = &v
	}

	return task, nil
}

// enumOrNil converts a pointer to a string-kinded enum into a nullable
// driver value without reflection on the concrete type.
func enumOrNil[T ~string](v *T) any {
	if v == nil {
		return nil
	}
	return strings.TrimSpace(string(*v))
}
