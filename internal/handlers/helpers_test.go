package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		data     any
		validate func(*testing.T, *http.Response)
	}{
		{
			name:   "extraction result",
			status: http.StatusOK,
			data:   map[string]any{"task_count": 3, "duplicate": false},
			validate: func(t *testing.T, resp *http.Response) {
				if resp.StatusCode != http.StatusOK {
					t.Errorf("Expected status 200, got %d", resp.StatusCode)
				}

				contentType := resp.Header.Get("Content-Type")
				if contentType != "application/json" {
					t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
				}

				var body map[string]any
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}

				if success, ok := body["success"].(bool); !ok || !success {
					t.Error("Expected success to be true")
				}

				if _, ok := body["timestamp"].(string); !ok {
					t.Error("Expected timestamp to be present")
				}

				if data, ok := body["data"].(map[string]any); !ok {
					t.Error("Expected data to be present")
				} else {
					if count, ok := data["task_count"].(float64); !ok || count != 3 {
						t.Errorf("Expected task_count 3, got %v", data["task_count"])
					}
				}
			},
		},
		{
			name:   "nil data",
			status: http.StatusAccepted,
			data:   nil,
			validate: func(t *testing.T, resp *http.Response) {
				if resp.StatusCode != http.StatusAccepted {
					t.Errorf("Expected status 202, got %d", resp.StatusCode)
				}

				var body map[string]any
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}

				if body["data"] != nil {
					t.Error("Expected data to be nil")
				}
			},
		},
		{
			name:   "task list",
			status: http.StatusOK,
			data: []map[string]string{
				{"title": "Sign the field trip form"},
				{"title": "Pack swimming kit"},
			},
			validate: func(t *testing.T, resp *http.Response) {
				var body map[string]any
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}

				if data, ok := body["data"].([]any); !ok {
					t.Error("Expected data to be an array")
				} else {
					if len(data) != 2 {
						t.Errorf("Expected array length 2, got %d", len(data))
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			resp := w.Result()
			defer resp.Body.Close()

			if tt.validate != nil {
				tt.validate(t, resp)
			}
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		errorType string
		message   string
	}{
		{
			name:      "invalid request",
			status:    http.StatusBadRequest,
			errorType: "invalid_request",
			message:   "Either text_body or html_body is required",
		},
		{
			name:      "processing failed",
			status:    http.StatusInternalServerError,
			errorType: "processing_failed",
			message:   "Failed to extract tasks from email",
		},
		{
			name:      "unknown user",
			status:    http.StatusNotFound,
			errorType: "not_found",
			message:   "Unknown user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSONError(w, tt.status, tt.errorType, tt.message)

			resp := w.Result()
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}

			contentType := resp.Header.Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
			}

			var body map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if success, ok := body["success"].(bool); !ok || success {
				t.Error("Expected success to be false")
			}

			if errorType, ok := body["error"].(string); !ok || errorType != tt.errorType {
				t.Errorf("Expected error '%s', got '%v'", tt.errorType, body["error"])
			}

			if msg, ok := body["message"].(string); !ok || msg != tt.message {
				t.Errorf("Expected message '%s', got '%v'", tt.message, body["message"])
			}

			if _, ok := body["timestamp"].(string); !ok {
				t.Error("Expected timestamp to be present")
			}
		})
	}
}

func TestRespondJSONTimestamp(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusOK, "ok")

	resp := w.Result()
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	timestamp, ok := body["timestamp"].(string)
	if !ok {
		t.Fatal("Timestamp not found in response")
	}

	if _, err := time.Parse(time.RFC3339, timestamp); err != nil {
		t.Errorf("Timestamp '%s' is not valid RFC3339: %v", timestamp, err)
	}
}
