package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthCheckBasicMode(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(nil, nil, nil)

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest("GET", "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks != nil {
		t.Errorf("basic mode must not run dependency checks, got %v", resp.Checks)
	}
	if resp.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestHealthCheckExtendedModeHealthy(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(nil, nil, &mockJobQueue{})

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest("GET", "/healthz?mode=extended", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["rabbitmq"] != "healthy" {
		t.Errorf("rabbitmq check = %q, want healthy", resp.Checks["rabbitmq"])
	}
}

func TestHealthCheckExtendedModeUnhealthy(t *testing.T) {
	t.Parallel()

	jobs := &mockJobQueue{healthErr: errors.New("connection is closed")}
	h := NewHealthChecker(nil, nil, jobs)

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest("GET", "/healthz?mode=extended", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", resp.Status)
	}
	if !strings.HasPrefix(resp.Checks["rabbitmq"], "unhealthy") {
		t.Errorf("rabbitmq check = %q, want unhealthy prefix", resp.Checks["rabbitmq"])
	}
}
