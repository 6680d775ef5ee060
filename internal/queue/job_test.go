package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	job := NewJob(JobTypeReprocessEmails, &userID)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeReprocessEmails {
		t.Errorf("Expected job type %s, got %s", JobTypeReprocessEmails, job.Type)
	}
	if job.UserID == nil || *job.UserID != userID {
		t.Errorf("Expected user ID %s, got %v", userID, job.UserID)
	}
	if job.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", job.MaxRetries)
	}
}

func TestNewJobWithoutUser(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeDepositBudget, nil)

	if job.UserID != nil {
		t.Errorf("Expected nil user ID for a fleet-wide job, got %v", job.UserID)
	}
	if job.Type != JobTypeDepositBudget {
		t.Errorf("Expected job type %s, got %s", JobTypeDepositBudget, job.Type)
	}
}

func TestJobShouldProcess(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no time constraints", want: true},
		{name: "not-before already passed", notBefore: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not-before still ahead", notBefore: timePtr(now.Add(time.Hour)), want: false},
		{name: "not-after already passed", notAfter: timePtr(now.Add(-time.Hour)), want: false},
		{name: "not-after still ahead", notAfter: timePtr(now.Add(time.Hour)), want: true},
		{name: "inside window", notBefore: timePtr(now.Add(-time.Hour)), notAfter: timePtr(now.Add(time.Hour)), want: true},
		{name: "window not open yet", notBefore: timePtr(now.Add(time.Hour)), notAfter: timePtr(now.Add(2 * time.Hour)), want: false},
		{name: "window already closed", notBefore: timePtr(now.Add(-2 * time.Hour)), notAfter: timePtr(now.Add(-time.Hour)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			userID := uuid.New()
			job := &Job{
				ID:        uuid.New(),
				Type:      JobTypeReprocessEmails,
				UserID:    &userID,
				NotBefore: tt.notBefore,
				NotAfter:  tt.notAfter,
			}
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobIsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name     string
		notAfter *time.Time
		want     bool
	}{
		{name: "no expiration", want: false},
		{name: "expired", notAfter: timePtr(now.Add(-time.Hour)), want: true},
		{name: "not expired", notAfter: timePtr(now.Add(time.Hour)), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{
				ID:       uuid.New(),
				Type:     JobTypeReprocessEmails,
				NotAfter: tt.notAfter,
			}
			if got := job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobCanRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "no retries yet", retryCount: 0, maxRetries: 3, want: true},
		{name: "one retry used", retryCount: 1, maxRetries: 3, want: true},
		{name: "last retry available", retryCount: 2, maxRetries: 3, want: true},
		{name: "at max retries", retryCount: 3, maxRetries: 3, want: false},
		{name: "beyond max retries", retryCount: 4, maxRetries: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{
				ID:         uuid.New(),
				Type:       JobTypeReprocessEmails,
				RetryCount: tt.retryCount,
				MaxRetries: tt.maxRetries,
			}
			if got := job.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobIncrementRetry(t *testing.T) {
	t.Parallel()

	job := &Job{
		ID:         uuid.New(),
		Type:       JobTypeReprocessEmails,
		MaxRetries: 3,
	}

	for i := 1; i <= 3; i++ {
		job.IncrementRetry()
		if job.RetryCount != i {
			t.Errorf("Expected retry count %d after increment, got %d", i, job.RetryCount)
		}
	}
}
