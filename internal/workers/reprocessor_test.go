package workers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/reconciler"
)

type mockEmailRepo struct {
	listUnprocessedFunc func(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error)

	listedUsers []*uuid.UUID
}

func (m *mockEmailRepo) Create(ctx context.Context, email *models.RawEmail) error { return nil }
func (m *mockEmailRepo) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	return false, nil
}
func (m *mockEmailRepo) ExistsByCompositeKey(ctx context.Context, from, to, subject *string, sentAt *time.Time) (bool, error) {
	return false, nil
}
func (m *mockEmailRepo) MarkProcessed(ctx context.Context, id int64, tasksAfter int, inputCostNano, outputCostNano int64) error {
	return nil
}

func (m *mockEmailRepo) ListUnprocessed(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error) {
	m.listedUsers = append(m.listedUsers, userID)
	return m.listUnprocessedFunc(ctx, userID)
}

type mockBudgetRepo struct {
	getRemainingFunc func(ctx context.Context, userID uuid.UUID) (int64, error)
	decrementFunc    func(ctx context.Context, userID uuid.UUID, amountNano int64) error

	decremented map[uuid.UUID]int64
}

func (m *mockBudgetRepo) GetRemaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	if m.getRemainingFunc != nil {
		return m.getRemainingFunc(ctx, userID)
	}
	return 1_000_000, nil
}

func (m *mockBudgetRepo) Decrement(ctx context.Context, userID uuid.UUID, amountNano int64) error {
	if m.decrementFunc != nil {
		if err := m.decrementFunc(ctx, userID, amountNano); err != nil {
			return err
		}
	}
	if m.decremented == nil {
		m.decremented = make(map[uuid.UUID]int64)
	}
	m.decremented[userID] += amountNano
	return nil
}

func (m *mockBudgetRepo) Deposit(ctx context.Context, userID uuid.UUID, amountNano, capNano int64) (int64, error) {
	return amountNano, nil
}

type mockReconciler struct {
	reconcileFunc func(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*reconciler.Result, error)

	calls []int64
	texts []string
}

func (m *mockReconciler) Reconcile(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*reconciler.Result, error) {
	m.calls = append(m.calls, emailID)
	m.texts = append(m.texts, emailText)
	if m.reconcileFunc != nil {
		return m.reconcileFunc(ctx, userID, emailID, emailText)
	}
	return &reconciler.Result{TotalCostNano: 500_000}, nil
}

func unprocessedEmail(id int64, userID uuid.UUID, text string) *models.RawEmail {
	return &models.RawEmail{
		ID:       id,
		UserID:   userID,
		TextBody: &text,
		Status:   models.EmailStatusUnprocessed,
	}
}

func TestReprocessorRunProcessesAllPending(t *testing.T) {
	t.Parallel()

	userA := uuid.New()
	userB := uuid.New()
	emails := &mockEmailRepo{
		listUnprocessedFunc: func(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error) {
			return []*models.RawEmail{
				unprocessedEmail(1, userA, "first"),
				unprocessedEmail(2, userB, "second"),
			}, nil
		},
	}
	budgets := &mockBudgetRepo{}
	rec := &mockReconciler{}

	r := NewReprocessor(emails, budgets, rec, 0, zap.NewNop())
	processed, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2", processed)
	}
	if len(rec.calls) != 2 || rec.calls[0] != 1 || rec.calls[1] != 2 {
		t.Errorf("reconcile calls = %v, want [1 2] in order", rec.calls)
	}
	if budgets.decremented[userA] != 500_000 || budgets.decremented[userB] != 500_000 {
		t.Errorf("decrements = %v, want 500000 for each user", budgets.decremented)
	}
}

func TestReprocessorRunFiltersByUser(t *testing.T) {
	t.Parallel()

	userB := uuid.New()
	emails := &mockEmailRepo{
		listUnprocessedFunc: func(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error) {
			// The repository applies the user filter in its query, so a
			// filtered sweep only ever sees that user's rows.
			if userID == nil || *userID != userB {
				t.Errorf("ListUnprocessed user filter = %v, want %s", userID, userB)
			}
			return []*models.RawEmail{
				unprocessedEmail(2, userB, "second"),
			}, nil
		},
	}
	rec := &mockReconciler{}

	r := NewReprocessor(emails, &mockBudgetRepo{}, rec, 0, zap.NewNop())
	processed, err := r.Run(context.Background(), &userB)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if len(rec.calls) != 1 || rec.calls[0] != 2 {
		t.Errorf("reconcile calls = %v, want only email 2", rec.calls)
	}
	if len(emails.listedUsers) != 1 || emails.listedUsers[0] == nil {
		t.Errorf("expected the user filter forwarded to the repository, got %v", emails.listedUsers)
	}
}

func TestReprocessorRunSkipsUsersWithoutBudget(t *testing.T) {
	t.Parallel()

	broke := uuid.New()
	funded := uuid.New()
	emails := &mockEmailRepo{
		listUnprocessedFunc: func(ctx context.Context, userID *uuid.UUID) ([]*models.RawEmail, error) {
			return []*models.RawEmail{
				unprocessedEmail(1, broke, "first"),
				unprocessedEmail(2, funded, "second"),
			}, nil
		},
	}
	budgets := &mockBudgetRepo{
		getRemainingFunc: func(ctx context.Context, userID uuid.UUID) (int64, error) {
			if userID == broke {
				return 0, nil
			}
			return 1_000_000, nil
		},
	}
	rec := &mockReconciler{}

	r := NewReprocessor(emails, budgets, rec, 0, zap.NewNop())
	processed, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
	if len(rec.calls) != 1 || rec.calls[0] != 2 {
		t.Errorf("reconcile calls = %v, want only the funded user's email", rec.calls)
	}
}

func TestReprocessorRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	emails := &mockEmailRepo{
		listUnprocessedFunc: func(ctx context.Context, _ *uuid.UUID) ([]*models.RawEmail, error) {
			return []*models.RawEmail{
				unprocessedEmail(1, userID, "first"),
				unprocessedEmail(2, userID, "second"),
				unprocessedEmail(3, userID, "third"),
			}, nil
		},
	}
	budgets := &mockBudgetRepo{}
	rec := &mockReconciler{
		reconcileFunc: func(ctx context.Context, id uuid.UUID, emailID int64, text string) (*reconciler.Result, error) {
			if emailID == 2 {
				return nil, errors.New("model unavailable")
			}
			return &reconciler.Result{TotalCostNano: 100_000}, nil
		},
	}

	r := NewReprocessor(emails, budgets, rec, 0, zap.NewNop())
	processed, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if processed != 2 {
		t.Errorf("processed = %d, want 2 despite one failure", processed)
	}
	if len(rec.calls) != 3 {
		t.Errorf("expected all 3 emails attempted, got %v", rec.calls)
	}
	if budgets.decremented[userID] != 200_000 {
		t.Errorf("decremented = %d, want 200000 (failed email not charged)", budgets.decremented[userID])
	}
}

func TestReprocessorRunSelectsBody(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	stub := "tiny"
	html := "<p>" + strings.Repeat("long html content ", 10) + "</p>"
	emails := &mockEmailRepo{
		listUnprocessedFunc: func(ctx context.Context, _ *uuid.UUID) ([]*models.RawEmail, error) {
			e := unprocessedEmail(1, userID, stub)
			e.HTMLBody = &html
			return []*models.RawEmail{e}, nil
		},
	}
	rec := &mockReconciler{}

	r := NewReprocessor(emails, &mockBudgetRepo{}, rec, 0, zap.NewNop())
	if _, err := r.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.texts) != 1 || rec.texts[0] != html {
		t.Errorf("expected html body passed to reconciler, got %q", rec.texts[0])
	}
}

func TestReprocessorRunToleratesOverdraw(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	emails := &mockEmailRepo{
		listUnprocessedFunc: func(ctx context.Context, _ *uuid.UUID) ([]*models.RawEmail, error) {
			return []*models.RawEmail{unprocessedEmail(1, userID, "first")}, nil
		},
	}
	budgets := &mockBudgetRepo{
		getRemainingFunc: func(ctx context.Context, id uuid.UUID) (int64, error) { return 1, nil },
		decrementFunc: func(ctx context.Context, id uuid.UUID, amount int64) error {
			return database.ErrInsufficientBudget
		},
	}
	rec := &mockReconciler{}

	r := NewReprocessor(emails, budgets, rec, 0, zap.NewNop())
	processed, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1 (overdraw is logged, not fatal)", processed)
	}
}
