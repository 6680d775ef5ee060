package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientBudget is returned when a decrement would take a user's
// balance below zero. The balance is left unchanged.
var ErrInsufficientBudget = errors.New("insufficient processing budget")

const (
	budgetGetRemainingQuery = `SELECT remaining_nano_usd FROM processing_budgets WHERE user_id = $1`

	// The balance guard lives in the WHERE clause so check-and-subtract is
	// one statement under row-level locking.
	budgetDecrementQuery = `
		UPDATE processing_budgets
		SET remaining_nano_usd = remaining_nano_usd - $2, updated_at = NOW()
		WHERE user_id = $1 AND remaining_nano_usd >= $2
	`

	// LEAST clamps both the first deposit and every top-up at the cap.
	budgetDepositQuery = `
		INSERT INTO processing_budgets (user_id, remaining_nano_usd, updated_at)
		VALUES ($1, LEAST($2, $3), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET remaining_nano_usd = LEAST(processing_budgets.remaining_nano_usd + $2, $3),
		    updated_at = NOW()
		RETURNING remaining_nano_usd
	`
)

// BudgetRepository is the ledger for per-user processing budgets, held in
// fixed-point nano-USD. All mutations go through single conditional
// statements; the balance is never read-modify-written in Go.
type BudgetRepository struct {
	db *DB
}

// NewBudgetRepository creates a new budget repository
func NewBudgetRepository(db *DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// GetRemaining returns the user's remaining balance. A missing row reads
// as zero, not an error.
func (r *BudgetRepository) GetRemaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	var remaining int64
	err := r.db.QueryRowContext(ctx, budgetGetRemainingQuery, userID).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining budget: %w", err)
	}

	return remaining, nil
}

// Decrement atomically subtracts amountNano from the user's balance.
// The guard in the WHERE clause makes the check-and-subtract a single
// statement, so concurrent decrements for the same user cannot lose
// updates or drive the balance negative.
func (r *BudgetRepository) Decrement(ctx context.Context, userID uuid.UUID, amountNano int64) error {
	if amountNano < 0 {
		return fmt.Errorf("decrement amount must be non-negative, got %d", amountNano)
	}

	result, err := r.db.ExecContext(ctx, budgetDecrementQuery, userID, amountNano)
	if err != nil {
		return fmt.Errorf("failed to decrement budget: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInsufficientBudget
	}

	return nil
}

// Deposit adds amountNano to the user's balance, creating the row on first
// deposit and clamping the result at capNano. Returns the new balance.
func (r *BudgetRepository) Deposit(ctx context.Context, userID uuid.UUID, amountNano, capNano int64) (int64, error) {
	if amountNano < 0 {
		return 0, fmt.Errorf("deposit amount must be non-negative, got %d", amountNano)
	}

	var newBalance int64
	err := r.db.QueryRowContext(ctx, budgetDepositQuery, userID, amountNano, capNano).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("failed to deposit budget: %w", err)
	}

	return newBalance, nil
}
