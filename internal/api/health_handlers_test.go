package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) HealthCheck(ctx context.Context) error {
	return s.err
}

var checkerDown = &stubChecker{err: errors.New("connection refused")}

func callHealth(t *testing.T, h *HealthHandlers, handler http.HandlerFunc, method string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(method, "/health", nil))

	var resp HealthResponse
	if w.Code == http.StatusOK || w.Code == http.StatusServiceUnavailable {
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{})
	w, resp := callHealth(t, h, h.Health, http.MethodGet)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
	if resp.Status != "healthy" {
		t.Errorf("status field = %s, want healthy", resp.Status)
	}
	if resp.Checks["runtime"] != "ok" {
		t.Errorf("runtime check = %s, want ok", resp.Checks["runtime"])
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{})

	if w, _ := callHealth(t, h, h.Health, http.MethodPost); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want 405", w.Code)
	}
	if w, _ := callHealth(t, h, h.Ready, http.MethodPost); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /ready status = %d, want 405", w.Code)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		config     HealthHandlersConfig
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all dependencies up",
			config: HealthHandlersConfig{
				DBChecker:    &stubChecker{},
				RedisChecker: &stubChecker{},
				ChatChecker:  &stubChecker{},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "chat": "ok"},
		},
		{
			name: "database down",
			config: HealthHandlersConfig{
				DBChecker:    checkerDown,
				RedisChecker: &stubChecker{},
				ChatChecker:  &stubChecker{},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"database": "error", "redis": "ok", "chat": "ok"},
		},
		{
			name: "identity provider down",
			config: HealthHandlersConfig{
				DBChecker:   &stubChecker{},
				ChatChecker: checkerDown,
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "chat": "error"},
		},
		{
			name: "database and redis down",
			config: HealthHandlersConfig{
				DBChecker:    checkerDown,
				RedisChecker: checkerDown,
				ChatChecker:  &stubChecker{},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"database": "error", "redis": "error", "chat": "ok"},
		},
		{
			// In-memory deployments configure no checkers at all.
			name:       "no checkers configured",
			config:     HealthHandlersConfig{},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{"database": "ok", "redis": "ok", "chat": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandlers(tt.config)
			w, resp := callHealth(t, h, h.Ready, http.MethodGet)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status field = %s, want %s", resp.Status, tt.wantStatus)
			}
			for check, want := range tt.wantChecks {
				if got := resp.Checks[check]; got != want {
					t.Errorf("%s check = %s, want %s", check, got, want)
				}
			}
		})
	}
}
