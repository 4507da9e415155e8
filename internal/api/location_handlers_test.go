package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kindred-social/kindred/internal/block"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/middleware"
)

func testLocationHandlers(t *testing.T) (*LocationHandlers, *location.InMemoryRepository, *block.InMemoryRepository) {
	t.Helper()

	kp, err := location.DeriveKey("test-secret")
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	cipher, err := location.NewCipher(kp)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	repo := location.NewInMemoryRepository()
	blocks := block.NewInMemoryRepository()
	engine := location.NewEngine(cipher, repo, nil, nil)
	return NewLocationHandlers(cipher, repo, engine, blocks), repo, blocks
}

func limitPtr(n int) *int { return &n }

// authedRequest builds a request whose context carries the verified
// user ID, as RequireAuth would.
func authedRequest(method, path, userID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(middleware.SetUserID(req.Context(), userID))
	return req
}

func seedUser(t *testing.T, h *LocationHandlers, userID string, lat, lon float64, visibility string) {
	t.Helper()
	req := authedRequest(http.MethodPost, "/api/locations/update", userID, UpdateLocationRequest{
		Latitude:   lat,
		Longitude:  lon,
		Visibility: visibility,
	})
	w := httptest.NewRecorder()
	h.UpdateLocation(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("seeding %s failed with status %d: %s", userID, w.Code, w.Body.String())
	}
}

func TestUpdateLocation(t *testing.T) {
	h, repo, _ := testLocationHandlers(t)

	req := authedRequest(http.MethodPost, "/api/locations/update", "user-1", UpdateLocationRequest{
		Latitude:   52.52,
		Longitude:  13.405,
		Visibility: "hidden",
	})
	w := httptest.NewRecorder()
	h.UpdateLocation(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp["status"] != "success" {
		t.Errorf("status = %q, want success", resp["status"])
	}
	if resp["visibility"] != "hidden" {
		t.Errorf("visibility = %q, want hidden", resp["visibility"])
	}

	rec, err := repo.GetSelf(context.Background(), "user-1", location.PrimaryWindow)
	if err != nil {
		t.Fatalf("GetSelf failed: %v", err)
	}
	if rec.Visibility != location.VisibilityHidden {
		t.Errorf("Visibility = %q, want hidden", rec.Visibility)
	}
	if rec.EncryptedData == "" {
		t.Error("expected encrypted payload to be stored")
	}
}

func TestUpdateLocation_CountsUpdates(t *testing.T) {
	h, _, _ := testLocationHandlers(t)

	metrics := location.NewMetrics()
	h.WithMetrics(metrics)

	seedUser(t, h, "user-1", 52.52, 13.405, "public")
	seedUser(t, h, "user-1", 52.53, 13.41, "public")

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == location.MetricLocationUpdatesTotal {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("%s = %v, want 2", location.MetricLocationUpdatesTotal, got)
			}
			return
		}
	}
	t.Fatalf("%s not gathered", location.MetricLocationUpdatesTotal)
}

func TestUpdateLocation_Validation(t *testing.T) {
	h, _, _ := testLocationHandlers(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "latitude out of range",
			body:     UpdateLocationRequest{Latitude: 91, Longitude: 0},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidation,
		},
		{
			name:     "longitude out of range",
			body:     UpdateLocationRequest{Latitude: 0, Longitude: -181},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeValidation,
		},
		{
			name:     "unknown visibility",
			body:     UpdateLocationRequest{Latitude: 0, Longitude: 0, Visibility: "invisible"},
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeInvalidVisibility,
		},
		{
			name:     "malformed body",
			body:     "not json",
			wantCode: http.StatusBadRequest,
			wantErr:  ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(http.MethodPost, "/api/locations/update", "user-1", tt.body)
			w := httptest.NewRecorder()
			h.UpdateLocation(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("response is not an error envelope: %v", err)
			}
			if resp.Error.Code != tt.wantErr {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantErr)
			}
		})
	}
}

func TestNearby(t *testing.T) {
	h, _, _ := testLocationHandlers(t)

	seedUser(t, h, "self", 52.52, 13.405, "public")
	seedUser(t, h, "close", 52.53, 13.41, "public")
	seedUser(t, h, "far", 48.8566, 2.3522, "hidden")
	seedUser(t, h, "unseen", 52.52, 13.40, "private")

	req := authedRequest(http.MethodPost, "/api/locations/nearby", "self", NearbyRequest{Limit: limitPtr(10)})
	w := httptest.NewRecorder()
	h.Nearby(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp NearbyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.UserID != "self" {
		t.Errorf("UserID = %q, want self", resp.UserID)
	}
	if resp.TotalFound != 2 {
		t.Errorf("TotalFound = %d, want 2 (private user excluded)", resp.TotalFound)
	}
	if len(resp.NearestUsers) != 2 {
		t.Fatalf("NearestUsers = %d, want 2", len(resp.NearestUsers))
	}
	if resp.NearestUsers[0].UserID != "close" {
		t.Errorf("nearest = %q, want close", resp.NearestUsers[0].UserID)
	}
	if resp.TimeWindow != "48 hours" {
		t.Errorf("TimeWindow = %q, want %q", resp.TimeWindow, "48 hours")
	}
	for _, m := range resp.NearestUsers {
		if m.UserID == "unseen" {
			t.Error("private user leaked into results")
		}
	}
}

func TestNearby_DefaultLimit(t *testing.T) {
	h, _, _ := testLocationHandlers(t)

	seedUser(t, h, "self", 0, 0, "public")
	for i := 0; i < 15; i++ {
		seedUser(t, h, string(rune('a'+i)), float64(i)*0.01, 0, "public")
	}

	// Limit omitted: defaults to 10.
	req := authedRequest(http.MethodPost, "/api/locations/nearby", "self", NearbyRequest{})
	w := httptest.NewRecorder()
	h.Nearby(w, req)

	var resp NearbyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(resp.NearestUsers) != 10 {
		t.Errorf("NearestUsers = %d, want default limit 10", len(resp.NearestUsers))
	}
	if resp.TotalFound != 15 {
		t.Errorf("TotalFound = %d, want 15", resp.TotalFound)
	}
}

func TestNearby_InvalidLimit(t *testing.T) {
	h, _, _ := testLocationHandlers(t)
	seedUser(t, h, "self", 0, 0, "public")

	// An explicit 0 is outside [1, 100] and must be rejected, not
	// silently replaced with the default.
	for _, limit := range []int{0, -1, 101, 1000} {
		req := authedRequest(http.MethodPost, "/api/locations/nearby", "self", NearbyRequest{Limit: limitPtr(limit)})
		w := httptest.NewRecorder()
		h.Nearby(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("limit %d: status = %d, want 400", limit, w.Code)
		}
		var resp ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Error.Code != ErrCodeInvalidLimit {
			t.Errorf("limit %d: error code = %q, want %q", limit, resp.Error.Code, ErrCodeInvalidLimit)
		}
	}
}

func TestNearby_NoSelfLocation(t *testing.T) {
	h, _, _ := testLocationHandlers(t)
	seedUser(t, h, "other", 0, 0, "public")

	req := authedRequest(http.MethodPost, "/api/locations/nearby", "self", NearbyRequest{})
	w := httptest.NewRecorder()
	h.Nearby(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeNotFound)
	}
}

func TestNearby_BlockedUsersExcluded(t *testing.T) {
	h, _, blocks := testLocationHandlers(t)

	seedUser(t, h, "self", 52.52, 13.405, "public")
	seedUser(t, h, "blocked", 52.53, 13.41, "public")
	seedUser(t, h, "blocker", 52.54, 13.42, "public")
	seedUser(t, h, "neutral", 52.55, 13.43, "public")

	ctx := context.Background()
	if err := blocks.Block(ctx, "self", "blocked"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if err := blocks.Block(ctx, "blocker", "self"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	req := authedRequest(http.MethodPost, "/api/locations/nearby", "self", NearbyRequest{})
	w := httptest.NewRecorder()
	h.Nearby(w, req)

	var resp NearbyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.TotalFound != 1 {
		t.Errorf("TotalFound = %d, want 1", resp.TotalFound)
	}
	if len(resp.NearestUsers) != 1 || resp.NearestUsers[0].UserID != "neutral" {
		t.Errorf("NearestUsers = %+v, want only neutral", resp.NearestUsers)
	}
}

func TestNearbyByCoordinates(t *testing.T) {
	h, _, _ := testLocationHandlers(t)

	seedUser(t, h, "self", 52.52, 13.405, "public")
	seedUser(t, h, "close", 52.53, 13.41, "public")

	req := authedRequest(http.MethodPost, "/api/locations/nearby_by_coordinates", "self", NearbyByCoordinatesRequest{
		Latitude:  52.52,
		Longitude: 13.405,
	})
	w := httptest.NewRecorder()
	h.NearbyByCoordinates(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp NearbyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if resp.UserID != "" {
		t.Errorf("UserID = %q, want empty for coordinate queries", resp.UserID)
	}
	// The caller's own record is excluded.
	if resp.TotalFound != 1 {
		t.Errorf("TotalFound = %d, want 1", resp.TotalFound)
	}
	if len(resp.NearestUsers) != 1 || resp.NearestUsers[0].UserID != "close" {
		t.Errorf("NearestUsers = %+v, want only close", resp.NearestUsers)
	}
}

func TestNearbyByCoordinates_InvalidCoordinates(t *testing.T) {
	h, _, _ := testLocationHandlers(t)

	req := authedRequest(http.MethodPost, "/api/locations/nearby_by_coordinates", "self", NearbyByCoordinatesRequest{
		Latitude:  95,
		Longitude: 0,
	})
	w := httptest.NewRecorder()
	h.NearbyByCoordinates(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeValidation)
	}
}
