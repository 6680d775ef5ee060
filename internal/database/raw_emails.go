package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailtasker/mailtasker/internal/models"
)

// RawEmailRepository handles raw email database operations
type RawEmailRepository struct {
	db *DB
}

// NewRawEmailRepository creates a new raw email repository
func NewRawEmailRepository(db *DB) *RawEmailRepository {
	return &RawEmailRepository{db: db}
}

const rawEmailColumns = `id, user_id, from_email, to_email, subject, text_body,
	html_body, provider_meta, sent_at, message_id, input_cost_nano_usd,
	output_cost_nano_usd, tasks_before, tasks_after, status, created_at`

// Create inserts a new raw email row in UNPROCESSED state.
func (r *RawEmailRepository) Create(ctx context.Context, email *models.RawEmail) error {
	query := `
		INSERT INTO raw_emails (user_id, from_email, to_email, subject, text_body,
			html_body, provider_meta, sent_at, message_id, input_cost_nano_usd,
			output_cost_nano_usd, tasks_before, tasks_after, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`

	meta := email.ProviderMeta
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	if email.Status == "" {
		email.Status = models.EmailStatusUnprocessed
	}

	err := r.db.QueryRowContext(ctx, query,
		email.UserID,
		email.FromEmail,
		email.ToEmail,
		email.Subject,
		email.TextBody,
		email.HTMLBody,
		meta,
		email.SentAt,
		email.MessageID,
		email.InputCostNano,
		email.OutputCostNano,
		email.TasksBefore,
		email.TasksAfter,
		email.Status,
	).Scan(&email.ID, &email.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create raw email: %w", err)
	}

	return nil
}

// ExistsByMessageID reports whether any email with this message identifier
// has been stored already.
func (r *RawEmailRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM raw_emails WHERE message_id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check message id: %w", err)
	}

	return exists, nil
}

// ExistsByCompositeKey checks the (from, to, subject, sent_at) fallback key.
// Each field compares null-vs-value explicitly: a field absent on both
// sides counts as equal-null, never as a mismatch.
func (r *RawEmailRepository) ExistsByCompositeKey(ctx context.Context, from, to, subject *string, sentAt *time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM raw_emails
			WHERE from_email IS NOT DISTINCT FROM $1
			  AND to_email IS NOT DISTINCT FROM $2
			  AND subject IS NOT DISTINCT FROM $3
			  AND sent_at IS NOT DISTINCT FROM $4
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, from, to, subject, sentAt).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check composite key: %w", err)
	}

	return exists, nil
}

// MarkProcessed transitions an email to UPDATED_TASKS with the final task
// count and recorded costs. The status never regresses: the WHERE clause
// only matches UNPROCESSED rows.
func (r *RawEmailRepository) MarkProcessed(ctx context.Context, id int64, tasksAfter int, inputCostNano, outputCostNano int64) error {
	query := `
		UPDATE raw_emails
		SET tasks_after = $2, status = $3,
		    input_cost_nano_usd = $4, output_cost_nano_usd = $5
		WHERE id = $1 AND status = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		id,
		tasksAfter,
		models.EmailStatusUpdatedTasks,
		inputCostNano,
		outputCostNano,
		models.EmailStatusUnprocessed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("email %d not found or already processed", id)
	}

	return nil
}

// ListUnprocessed returns UNPROCESSED emails ordered by original send time
// so the batch driver retries them in arrival order. A non-nil userID
// narrows the set to that user's emails.
func (r *RawEmailRepository) ListUnprocessed(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM raw_emails
		WHERE status = $1
		AND ($2::uuid IS NULL OR user_id = $2)
		ORDER BY sent_at ASC NULLS LAST, id ASC
	`, rawEmailColumns)

	rows, err := r.db.QueryContext(ctx, query, models.EmailStatusUnprocessed, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed emails: %w", err)
	}
	defer rows.Close()

	var emails []*models.RawEmail
	for rows.Next() {
		email := &models.RawEmail{}
		var sentAt sql.NullTime
		err := rows.Scan(
			&email.ID,
			&email.UserID,
			&email.FromEmail,
			&email.ToEmail,
			&email.Subject,
			&email.TextBody,
			&email.HTMLBody,
			&email.ProviderMeta,
			&sentAt,
			&email.MessageID,
			&email.InputCostNano,
			&email.OutputCostNano,
			&email.TasksBefore,
			&email.TasksAfter,
			&email.Status,
			&email.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw email: %w", err)
		}
		if sentAt.Valid {
			email.SentAt = &sentAt.Time
		}
		emails = append(emails, email)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw emails: %w", err)
	}

	return emails, nil
}
