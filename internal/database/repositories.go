package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mailtasker/mailtasker/internal/models"
)

// TaskRepositoryInterface defines the interface for task repository operations
// This interface enables better testability by allowing mock implementations
type TaskRepositoryInterface interface {
	GetOpenByUser(ctx context.Context, userID uuid.UUID) ([]*models.Task, error)
	InsertBatch(ctx context.Context, tasks []*models.Task) error
	DeleteByIDs(ctx context.Context, ids []int64) error
}

// RawEmailRepositoryInterface defines the interface for raw email repository operations
type RawEmailRepositoryInterface interface {
	Create(ctx context.Context, email *models.RawEmail) error
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	ExistsByCompositeKey(ctx context.Context, from, to, subject *string, sentAt *time.Time) (bool, error)
	MarkProcessed(ctx context.Context, id int64, tasksAfter int, inputCostNano, outputCostNano int64) error
	ListUnprocessed(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error)
}

// BudgetRepositoryInterface defines the interface for the budget ledger
type BudgetRepositoryInterface interface {
	GetRemaining(ctx context.Context, userID uuid.UUID) (int64, error)
	Decrement(ctx context.Context, userID uuid.UUID, amountNano int64) error
	Deposit(ctx context.Context, userID uuid.UUID, amountNano, capNano int64) (int64, error)
}

// InvocationRepositoryInterface defines the interface for invocation audit rows
type InvocationRepositoryInterface interface {
	Create(ctx context.Context, inv *models.AIInvocation) error
}

// PromptConfigRepositoryInterface defines the interface for prompt config lookups
type PromptConfigRepositoryInterface interface {
	GetActive(ctx context.Context) (*models.PromptConfig, error)
}

// UserRepositoryInterface defines the interface for user lookups
type UserRepositoryInterface interface {
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TaskRepositoryInterface         = (*TaskRepository)(nil)
	_ RawEmailRepositoryInterface     = (*RawEmailRepository)(nil)
	_ BudgetRepositoryInterface       = (*BudgetRepository)(nil)
	_ InvocationRepositoryInterface   = (*InvocationRepository)(nil)
	_ PromptConfigRepositoryInterface = (*PromptConfigRepository)(nil)
	_ UserRepositoryInterface         = (*UserRepository)(nil)
)
