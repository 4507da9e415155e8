package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kindred-social/kindred/internal/auth"
	"github.com/kindred-social/kindred/internal/block"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/profile"
)

// stubVerifier accepts any token and echoes the user ID back.
type stubVerifier struct {
	fail error
}

func (v *stubVerifier) Verify(ctx context.Context, authToken, userID string) (*auth.Identity, error) {
	if v.fail != nil {
		return nil, v.fail
	}
	return &auth.Identity{UserID: userID, Username: userID}, nil
}

func testRouter(t *testing.T) *http.ServeMux {
	t.Helper()

	kp, err := location.DeriveKey("test-secret")
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	cipher, err := location.NewCipher(kp)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	locations := location.NewInMemoryRepository()
	profiles := profile.NewInMemoryRepository()
	blocks := block.NewInMemoryRepository()
	engine := location.NewEngine(cipher, locations, nil, nil)

	return NewRouter(RouterConfig{
		Location: NewLocationHandlers(cipher, locations, engine, blocks),
		Profile:  NewProfileHandlers(profiles, locations, cipher),
		Health:   NewHealthHandlers(HealthHandlersConfig{}),
		Verifier: &stubVerifier{},
	})
}

func TestRouter_AuthRequired(t *testing.T) {
	router := testRouter(t)

	// No auth headers: 401.
	req := httptest.NewRequest(http.MethodGet, "/api/profiles/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", w.Code)
	}

	// With headers the stub verifier lets us through.
	req = httptest.NewRequest(http.MethodGet, "/api/profiles/me", nil)
	req.Header.Set(HeaderAuthToken, "token")
	req.Header.Set(HeaderUserID, "alice")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated: status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp ProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.Core.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", resp.Core.UserID)
	}
}

func TestRouter_LocationFlow(t *testing.T) {
	router := testRouter(t)

	do := func(method, path, userID string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(HeaderAuthToken, "token")
		req.Header.Set(HeaderUserID, userID)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := do(http.MethodPost, "/api/locations/update", "alice",
		`{"latitude":52.52,"longitude":13.405,"visibility":"public"}`); w.Code != http.StatusOK {
		t.Fatalf("update alice: status = %d: %s", w.Code, w.Body.String())
	}
	if w := do(http.MethodPost, "/api/locations/update", "bob",
		`{"latitude":52.53,"longitude":13.41,"visibility":"public"}`); w.Code != http.StatusOK {
		t.Fatalf("update bob: status = %d: %s", w.Code, w.Body.String())
	}

	w := do(http.MethodPost, "/api/locations/nearby", "alice", `{"limit":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("nearby: status = %d: %s", w.Code, w.Body.String())
	}
	var resp NearbyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(resp.NearestUsers) != 1 || resp.NearestUsers[0].UserID != "bob" {
		t.Errorf("NearestUsers = %+v, want only bob", resp.NearestUsers)
	}
}

func TestRouter_ProbesUnauthenticated(t *testing.T) {
	router := testRouter(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without auth", path, w.Code)
		}
	}
}

func TestRouter_UnknownPath(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected an error envelope: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeNotFound)
	}
}

func TestRouter_ProviderUnavailable(t *testing.T) {
	router := NewRouter(RouterConfig{
		Profile:  NewProfileHandlers(profile.NewInMemoryRepository(), nil, nil),
		Verifier: &stubVerifier{fail: auth.ErrProviderUnavailable},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/me", nil)
	req.Header.Set(HeaderAuthToken, "token")
	req.Header.Set(HeaderUserID, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
