package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"fmt"
	"testing"

	"github.com/Mindburn-Labs/appops/pkg/api"
	"github.com/Mindburn-Labs/appops/pkg/appops"
	"github.com/Mindburn-Labs/appops/pkg/authz"
	"github.com/Mindburn-Labs/appops/pkg/registry"
)

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != 400 {
		t.Errorf("expected problem.status=400, got %d", problem.Status)
	}
	if problem.Title != "Bad Request" {
		t.Errorf("expected title 'Bad Request', got %q", problem.Title)
	}
	if problem.Detail != "field is missing" {
		t.Errorf("expected detail 'field is missing', got %q", problem.Detail)
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("redis: dial tcp 10.0.0.1:6379: connection refused"))

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Must NOT contain internal error details
	if problem.Detail == "redis: dial tcp 10.0.0.1:6379: connection refused" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, 30)

	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("expected Retry-After '30', got %q", ra)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteMethodNotAllowed(w)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestWriteUnauthorized_DefaultDetail(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteUnauthorized(w, "")

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if problem.Detail != "Authentication required" {
		t.Errorf("expected default detail, got %q", problem.Detail)
	}
}

func TestWriteErrorR_EnrichesWithRequestContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/ops/check", nil)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-123")

	api.WriteErrorR(w, req, http.StatusBadRequest, "Bad Request", "bad input")

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Instance != "/v1/ops/check" {
		t.Fatalf("expected instance %q, got %q", "/v1/ops/check", problem.Instance)
	}
	if problem.TraceID != "req-123" {
		t.Fatalf("expected trace_id %q, got %q", "req-123", problem.TraceID)
	}
}

func TestWriteEngineError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown op", fmt.Errorf("%w: android:nope", registry.ErrUnknownOperation), http.StatusBadRequest},
		{"invalid mode", appops.ErrInvalidMode, http.StatusBadRequest},
		{"denied", &appops.SecurityError{Op: "android:camera", UID: 10001, Err: authz.ErrPermissionDenied}, http.StatusForbidden},
		{"errored", &appops.SecurityError{Op: "android:camera", UID: 10001, Err: appops.ErrOpErrored}, http.StatusForbidden},
		{"bad subject", &appops.SecurityError{Op: "android:camera", UID: 10001, Err: appops.ErrBadSubject}, http.StatusNotFound},
		{"bad subject unwrapped", fmt.Errorf("%w: uid 1", appops.ErrBadSubject), http.StatusNotFound},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/ops/note", nil)
			w := httptest.NewRecorder()
			api.WriteEngineError(w, req, tc.err)
			if w.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, w.Code)
			}
			var problem api.ProblemDetail
			if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if problem.Type != fmt.Sprintf("https://appops.mindburn.org/errors/%d", tc.want) {
				t.Errorf("unexpected type %q", problem.Type)
			}
		})
	}
}
