package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/profile"
)

func testProfileHandlers(t *testing.T) (*ProfileHandlers, *profile.InMemoryRepository, *location.InMemoryRepository, *location.Cipher) {
	t.Helper()

	kp, err := location.DeriveKey("test-secret")
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	cipher, err := location.NewCipher(kp)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	profiles := profile.NewInMemoryRepository()
	locations := location.NewInMemoryRepository()
	return NewProfileHandlers(profiles, locations, cipher), profiles, locations, cipher
}

// pathRequest builds an authed request with a Go 1.22 path value set.
func pathRequest(method, path, pattern, userID string, body any) *http.Request {
	req := authedRequest(method, path, userID, body)
	mux := http.NewServeMux()
	var matched *http.Request
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		matched = r
	})
	mux.ServeHTTP(httptest.NewRecorder(), req)
	if matched == nil {
		panic("pattern did not match: " + pattern + " vs " + path)
	}
	return matched
}

func storedProfile(userID string) *profile.Profile {
	return &profile.Profile{
		Core: profile.Core{
			UserID:   userID,
			Username: "alice",
			Name:     "Alice Miller",
		},
		Extended: profile.Extended{
			Birthday:  "1990-04-12",
			Interests: []string{"Music"},
		},
	}
}

func TestGetMyProfile_DefaultOnMiss(t *testing.T) {
	h, _, _, _ := testProfileHandlers(t)

	req := authedRequest(http.MethodGet, "/api/profiles/me", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetMyProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (missing profiles are never a 404)", w.Code)
	}
	var resp ProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.Core.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", resp.Core.UserID)
	}
	if resp.Extended.Birthday != profile.DefaultBirthday {
		t.Errorf("Birthday = %q, want default", resp.Extended.Birthday)
	}
}

func TestGetMyProfile_Stored(t *testing.T) {
	h, profiles, _, _ := testProfileHandlers(t)

	if err := profiles.Upsert(context.Background(), storedProfile("user-1")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := authedRequest(http.MethodGet, "/api/profiles/me", "user-1", nil)
	w := httptest.NewRecorder()
	h.GetMyProfile(w, req)

	var resp ProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.Core.Username != "alice" {
		t.Errorf("Username = %q, want alice", resp.Core.Username)
	}
	if resp.CoarseArea != "" {
		t.Errorf("own profile must not carry coarse area, got %q", resp.CoarseArea)
	}
}

func TestGetProfile_CoarseArea(t *testing.T) {
	h, profiles, locations, cipher := testProfileHandlers(t)
	ctx := context.Background()

	if err := profiles.Upsert(ctx, storedProfile("target")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	encrypted, err := cipher.Encrypt(52.52, 13.405)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if err := locations.Upsert(ctx, "target", encrypted, location.VisibilityHidden); err != nil {
		t.Fatalf("location seed failed: %v", err)
	}

	req := pathRequest(http.MethodGet, "/api/profiles/target", "GET /api/profiles/{user_id}", "viewer", nil)
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	var resp ProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(resp.CoarseArea) != 6 {
		t.Errorf("CoarseArea = %q, want 6-char geohash", resp.CoarseArea)
	}
}

func TestGetProfile_PrivateLocationHidden(t *testing.T) {
	h, profiles, locations, cipher := testProfileHandlers(t)
	ctx := context.Background()

	if err := profiles.Upsert(ctx, storedProfile("target")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	encrypted, _ := cipher.Encrypt(52.52, 13.405)
	if err := locations.Upsert(ctx, "target", encrypted, location.VisibilityPrivate); err != nil {
		t.Fatalf("location seed failed: %v", err)
	}

	req := pathRequest(http.MethodGet, "/api/profiles/target", "GET /api/profiles/{user_id}", "viewer", nil)
	w := httptest.NewRecorder()
	h.GetProfile(w, req)

	var resp ProfileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.CoarseArea != "" {
		t.Errorf("private location leaked coarse area %q", resp.CoarseArea)
	}
}

func TestUpdateProfile(t *testing.T) {
	h, profiles, _, _ := testProfileHandlers(t)

	body := storedProfile("user-1")
	req := pathRequest(http.MethodPut, "/api/profiles/user-1", "PUT /api/profiles/{user_id}", "user-1", body)
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	stored, err := profiles.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if stored.Core.Name != "Alice Miller" {
		t.Errorf("Name = %q, want Alice Miller", stored.Core.Name)
	}
}

func TestUpdateProfile_Authorization(t *testing.T) {
	h, _, _, _ := testProfileHandlers(t)

	// Caller must own the path ID.
	req := pathRequest(http.MethodPut, "/api/profiles/other", "PUT /api/profiles/{user_id}", "user-1", storedProfile("other"))
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}

	// Body ID must match the path ID.
	req = pathRequest(http.MethodPut, "/api/profiles/user-1", "PUT /api/profiles/{user_id}", "user-1", storedProfile("mismatch"))
	w = httptest.NewRecorder()
	h.UpdateProfile(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateProfile_Validation(t *testing.T) {
	h, _, _, _ := testProfileHandlers(t)

	bad := storedProfile("user-1")
	bad.Core.Name = "DROP TABLE profiles"
	req := pathRequest(http.MethodPut, "/api/profiles/user-1", "PUT /api/profiles/{user_id}", "user-1", bad)
	w := httptest.NewRecorder()
	h.UpdateProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeValidation)
	}
}

func TestGetUserInterests(t *testing.T) {
	h, profiles, _, _ := testProfileHandlers(t)

	if err := profiles.Upsert(context.Background(), storedProfile("target")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := pathRequest(http.MethodGet, "/api/profiles/target/interests", "GET /api/profiles/{user_id}/interests", "viewer", nil)
	w := httptest.NewRecorder()
	h.GetUserInterests(w, req)

	var resp map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(resp["interests"]) != 1 || resp["interests"][0] != "Music" {
		t.Errorf("interests = %v, want [Music]", resp["interests"])
	}

	// Missing profile yields an empty list, not a 404.
	req = pathRequest(http.MethodGet, "/api/profiles/nobody/interests", "GET /api/profiles/{user_id}/interests", "viewer", nil)
	w = httptest.NewRecorder()
	h.GetUserInterests(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp["interests"]) != 0 {
		t.Errorf("interests = %v, want empty", resp["interests"])
	}
}

func TestGetInterestCatalog(t *testing.T) {
	h, _, _, _ := testProfileHandlers(t)

	req := authedRequest(http.MethodGet, "/api/interests", "viewer", nil)
	w := httptest.NewRecorder()
	h.GetInterestCatalog(w, req)

	var catalog []profile.InterestOption
	if err := json.Unmarshal(w.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(catalog) == 0 {
		t.Error("expected non-empty catalog")
	}
}
