package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/intake"
	"github.com/mailtasker/mailtasker/internal/middleware"
	"github.com/mailtasker/mailtasker/internal/models"
	"github.com/mailtasker/mailtasker/internal/queue"
	"github.com/mailtasker/mailtasker/internal/reconciler"
)

type mockEmailRepo struct {
	createFunc func(ctx context.Context, email *models.RawEmail) error

	created []*models.RawEmail
	nextID  int64
}

func (m *mockEmailRepo) Create(ctx context.Context, email *models.RawEmail) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, email); err != nil {
			return err
		}
	}
	m.nextID++
	email.ID = m.nextID
	m.created = append(m.created, email)
	return nil
}

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
	return nil, nil
}

type mockBudgetRepo struct {
	remaining   int64
	decremented int64
}

func (m *mockBudgetRepo) GetRemaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.remaining, nil
}

func (m *mockBudgetRepo) Decrement(ctx context.Context, userID uuid.UUID, amountNano int64) error {
	m.decremented += amountNano
	return nil
}

func (m *mockBudgetRepo) Deposit(ctx context.Context, userID uuid.UUID, amountNano, capNano int64) (int64, error) {
	return amountNano, nil
}

type mockGate struct {
	seen     bool
	err      error
	accepted []intake.EmailIdentity
}

func (m *mockGate) Seen(ctx context.Context, id intake.EmailIdentity) (bool, error) {
	return m.seen, m.err
}

func (m *mockGate) MarkAccepted(ctx context.Context, id intake.EmailIdentity) {
	m.accepted = append(m.accepted, id)
}

type mockReconciler struct {
	reconcileFunc func(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*reconciler.Result, error)

	calls int
	texts []string
}

func (m *mockReconciler) Reconcile(ctx context.Context, userID uuid.UUID, emailID int64, emailText string) (*reconciler.Result, error) {
	m.calls++
	m.texts = append(m.texts, emailText)
	if m.reconcileFunc != nil {
		return m.reconcileFunc(ctx, userID, emailID, emailText)
	}
	return &reconciler.Result{
		Tasks:         []*models.Task{{Title: "Sign slip"}, {Title: "Pay fee"}},
		TotalCostNano: 560_000,
	}, nil
}

type mockJobQueue struct {
	enqueued  []*queue.Job
	healthErr error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Dequeue(ctx context.Context) (*queue.Message, error) { return nil, nil }

func (m *mockJobQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, nil
}

func (m *mockJobQueue) Close() error                          { return nil }
func (m *mockJobQueue) HealthCheck(ctx context.Context) error { return m.healthErr }

type inboundFixture struct {
	handler *InboundEmailHandler
	emails  *mockEmailRepo
	budgets *mockBudgetRepo
	gate    *mockGate
	rec     *mockReconciler
	jobs    *mockJobQueue
}

func newInboundFixture() *inboundFixture {
	f := &inboundFixture{
		emails:  &mockEmailRepo{},
		budgets: &mockBudgetRepo{remaining: 1_000_000},
		gate:    &mockGate{},
		rec:     &mockReconciler{},
		jobs:    &mockJobQueue{},
	}
	f.handler = NewInboundEmailHandler(f.emails, f.budgets, f.gate, f.rec, f.jobs, 0.3, zap.NewNop())
	return f
}

func inboundRequest(t *testing.T, userID *uuid.UUID, payload any) *http.Request {
	t.Helper()
	var body bytes.Buffer
	switch p := payload.(type) {
	case string:
		body.WriteString(p)
	default:
		if err := json.NewEncoder(&body).Encode(p); err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
	}
	r := httptest.NewRequest("POST", "/inbound-email", &body)
	r.Header.Set("Content-Type", "application/json")
	if userID != nil {
		ctx := middleware.SetUserInContext(r.Context(), &models.User{ID: *userID})
		r = r.WithContext(ctx)
	}
	return r
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	data, _ := envelope["data"].(map[string]any)
	return data
}

func TestInboundEmailHappyPath(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	userID := uuid.New()
	text := "Please sign the permission slip by Friday."
	r := inboundRequest(t, &userID, map[string]any{
		"from_email": "school@example.org",
		"subject":    "Field trip",
		"text_body":  text,
	})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["task_count"] != float64(2) {
		t.Errorf("task_count = %v, want 2", data["task_count"])
	}
	if len(f.emails.created) != 1 {
		t.Fatalf("expected 1 stored email, got %d", len(f.emails.created))
	}
	if f.emails.created[0].UserID != userID {
		t.Errorf("stored email user = %s, want %s", f.emails.created[0].UserID, userID)
	}
	if f.rec.calls != 1 || f.rec.texts[0] != text {
		t.Errorf("reconciler got %d calls with texts %v", f.rec.calls, f.rec.texts)
	}
	if f.budgets.decremented != 560_000 {
		t.Errorf("decremented = %d, want 560000", f.budgets.decremented)
	}
	if len(f.gate.accepted) != 1 {
		t.Errorf("expected the message marked accepted once, got %d", len(f.gate.accepted))
	}
}

func TestInboundEmailStoreFailureLeavesGateUnmarked(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	f.emails.createFunc = func(ctx context.Context, email *models.RawEmail) error {
		return errors.New("insert failed")
	}
	userID := uuid.New()
	r := inboundRequest(t, &userID, map[string]any{
		"message_id": "<retry-1@example.org>",
		"text_body":  "Please sign the slip.",
	})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	// The dedup marker must only exist for stored emails, otherwise the
	// provider's retry of this delivery would be swallowed as a duplicate.
	if len(f.gate.accepted) != 0 {
		t.Errorf("gate marked accepted for an email that was never stored: %v", f.gate.accepted)
	}
}

func TestInboundEmailDuplicateAcknowledged(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	f.gate.seen = true
	userID := uuid.New()
	r := inboundRequest(t, &userID, map[string]any{"text_body": "hello"})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for duplicate", w.Code)
	}
	data := decodeData(t, w)
	if data["task_count"] != float64(0) {
		t.Errorf("task_count = %v, want 0", data["task_count"])
	}
	if len(f.emails.created) != 0 {
		t.Errorf("duplicate must not store an email, got %d", len(f.emails.created))
	}
	if f.rec.calls != 0 {
		t.Errorf("duplicate must not invoke the model, got %d calls", f.rec.calls)
	}
}

func TestInboundEmailValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload any
	}{
		{name: "not json", payload: "{invalid"},
		{name: "no body at all", payload: map[string]any{"subject": "empty"}},
		{name: "bad from address", payload: map[string]any{"from_email": "not-an-email", "text_body": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newInboundFixture()
			userID := uuid.New()
			r := inboundRequest(t, &userID, tt.payload)
			w := httptest.NewRecorder()
			f.handler.Receive(w, r)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if len(f.emails.created) != 0 {
				t.Errorf("invalid request must not store an email")
			}
		})
	}
}

func TestInboundEmailNoUser(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	r := inboundRequest(t, nil, map[string]any{"text_body": "hello"})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestInboundEmailDeferredWhenOutOfBudget(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	f.budgets.remaining = 0
	userID := uuid.New()
	r := inboundRequest(t, &userID, map[string]any{"text_body": "hello"})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for deferral", w.Code)
	}
	data := decodeData(t, w)
	if data["status"] != "deferred" {
		t.Errorf("status field = %v, want deferred", data["status"])
	}
	if len(f.emails.created) != 1 {
		t.Errorf("deferred email must still be stored, got %d", len(f.emails.created))
	}
	if f.rec.calls != 0 {
		t.Errorf("deferred email must not invoke the model")
	}
	if len(f.jobs.enqueued) != 1 || f.jobs.enqueued[0].Type != queue.JobTypeReprocessEmails {
		t.Errorf("expected one reprocess job enqueued, got %v", f.jobs.enqueued)
	}
}

func TestInboundEmailProcessingFailure(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	f.rec.reconcileFunc = func(ctx context.Context, userID uuid.UUID, emailID int64, text string) (*reconciler.Result, error) {
		return nil, errors.New("model unavailable")
	}
	userID := uuid.New()
	r := inboundRequest(t, &userID, map[string]any{"text_body": "hello"})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if len(f.emails.created) != 1 {
		t.Errorf("failed email must remain stored for retry")
	}
	if f.budgets.decremented != 0 {
		t.Errorf("failed processing must not charge, decremented %d", f.budgets.decremented)
	}
	if len(f.jobs.enqueued) != 1 {
		t.Errorf("expected retry job enqueued, got %d", len(f.jobs.enqueued))
	}
}

func TestInboundEmailHTMLFallback(t *testing.T) {
	t.Parallel()

	f := newInboundFixture()
	userID := uuid.New()
	html := "<p>Please pay the activity fee of $25 before the end of the month.</p>"
	r := inboundRequest(t, &userID, map[string]any{
		"text_body": "x",
		"html_body": html,
	})
	w := httptest.NewRecorder()
	f.handler.Receive(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(f.rec.texts) != 1 || f.rec.texts[0] != html {
		t.Errorf("expected html body passed to reconciler, got %v", f.rec.texts)
	}
}
