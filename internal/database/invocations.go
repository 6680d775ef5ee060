package database

import (
	"context"
	"fmt"

	"github.com/mailtasker/mailtasker/internal/models"
)

// InvocationRepository persists immutable model-call audit rows.
type InvocationRepository struct {
	db *DB
}

// NewInvocationRepository creates a new invocation repository
func NewInvocationRepository(db *DB) *InvocationRepository {
	return &InvocationRepository{db: db}
}

// Create inserts a new AI invocation audit row. There is no update or
// delete: every financially accountable call leaves exactly one record.
func (r *InvocationRepository) Create(ctx context.Context, inv *models.AIInvocation) error {
	query := `
		INSERT INTO ai_invocations (config_id, user_id, email_id, request_tokens,
			response_tokens, input_cost_nano, output_cost_nano, total_cost_nano,
			latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.ConfigID,
		inv.UserID,
		inv.EmailID,
		inv.RequestTokens,
		inv.ResponseTokens,
		inv.InputCostNano,
		inv.OutputCostNano,
		inv.TotalCostNano,
		inv.LatencyMillis,
	).Scan(&inv.ID, &inv.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create ai invocation: %w", err)
	}

	return nil
}
