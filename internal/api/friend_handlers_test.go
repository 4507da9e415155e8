package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kindred-social/kindred/internal/friendship"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/profile"
)

func testFriendHandlers(t *testing.T, users ...string) (*FriendHandlers, *location.InMemoryRepository, *location.Cipher) {
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
	for _, u := range users {
		p := profile.Default(u)
		if err := profiles.Upsert(context.Background(), p); err != nil {
			t.Fatalf("failed to seed profile %s: %v", u, err)
		}
	}

	locations := location.NewInMemoryRepository()
	svc := friendship.NewService(friendship.NewInMemoryRepository(), profiles, nil)
	return NewFriendHandlers(svc, profiles, locations, cipher), locations, cipher
}

func sendRequest(t *testing.T, h *FriendHandlers, sender, receiver string) FriendRequestResponse {
	t.Helper()
	req := authedRequest(http.MethodPost, "/api/friends/requests", sender, SendFriendRequestBody{ReceiverID: receiver})
	w := httptest.NewRecorder()
	h.SendRequest(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("send request failed with status %d: %s", w.Code, w.Body.String())
	}
	var resp FriendRequestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return resp
}

func acceptRequest(t *testing.T, h *FriendHandlers, requestID, receiver string) FriendResponse {
	t.Helper()
	req := pathRequest(http.MethodPost, "/api/friends/requests/"+requestID+"/accept",
		"POST /api/friends/requests/{id}/accept", receiver, nil)
	w := httptest.NewRecorder()
	h.AcceptRequest(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("accept failed with status %d: %s", w.Code, w.Body.String())
	}
	var resp FriendResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return resp
}

func TestSendFriendRequest(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")

	resp := sendRequest(t, h, "alice", "bob")
	if resp.Status != friendship.StatusPending {
		t.Errorf("Status = %q, want pending", resp.Status)
	}
	if resp.SenderProfile.UserID != "alice" {
		t.Errorf("SenderProfile.UserID = %q, want alice", resp.SenderProfile.UserID)
	}
}

func TestSendFriendRequest_Errors(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")
	sendRequest(t, h, "alice", "bob")

	tests := []struct {
		name     string
		sender   string
		body     any
		wantCode int
	}{
		{"self request", "alice", SendFriendRequestBody{ReceiverID: "alice"}, http.StatusBadRequest},
		{"unknown receiver", "alice", SendFriendRequestBody{ReceiverID: "nobody"}, http.StatusNotFound},
		{"duplicate", "alice", SendFriendRequestBody{ReceiverID: "bob"}, http.StatusBadRequest},
		{"reverse duplicate", "bob", SendFriendRequestBody{ReceiverID: "alice"}, http.StatusBadRequest},
		{"missing receiver id", "alice", map[string]string{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(http.MethodPost, "/api/friends/requests", tt.sender, tt.body)
			w := httptest.NewRecorder()
			h.SendRequest(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestAcceptFriendRequest(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")

	reqResp := sendRequest(t, h, "alice", "bob")
	friend := acceptRequest(t, h, reqResp.ID, "bob")

	if friend.UserID != "alice" {
		t.Errorf("UserID = %q, want alice (the other side)", friend.UserID)
	}
	if friend.FriendshipID == "" {
		t.Error("expected a friendship ID")
	}
}

func TestAcceptFriendRequest_ReceiverOnly(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")
	reqResp := sendRequest(t, h, "alice", "bob")

	// The sender cannot accept their own request.
	req := pathRequest(http.MethodPost, "/api/friends/requests/"+reqResp.ID+"/accept",
		"POST /api/friends/requests/{id}/accept", "alice", nil)
	w := httptest.NewRecorder()
	h.AcceptRequest(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRejectFriendRequest(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")
	reqResp := sendRequest(t, h, "alice", "bob")

	req := pathRequest(http.MethodPost, "/api/friends/requests/"+reqResp.ID+"/reject",
		"POST /api/friends/requests/{id}/reject", "bob", nil)
	w := httptest.NewRecorder()
	h.RejectRequest(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// After rejection the sender may try again.
	sendRequest(t, h, "alice", "bob")
}

func TestListFriendRequests(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob", "carol")
	sendRequest(t, h, "alice", "carol")
	sendRequest(t, h, "bob", "carol")

	req := authedRequest(http.MethodGet, "/api/friends/requests", "carol", nil)
	w := httptest.NewRecorder()
	h.ListRequests(w, req)

	var resp []FriendRequestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("got %d requests, want 2", len(resp))
	}
	for _, r := range resp {
		if r.SenderProfile.UserID != r.SenderID {
			t.Errorf("sender profile %q does not match sender %q", r.SenderProfile.UserID, r.SenderID)
		}
	}
}

func TestRemoveFriend(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")
	reqResp := sendRequest(t, h, "alice", "bob")
	friend := acceptRequest(t, h, reqResp.ID, "bob")

	// A third party cannot remove it.
	req := pathRequest(http.MethodDelete, "/api/friends/"+friend.FriendshipID,
		"DELETE /api/friends/{id}", "mallory", nil)
	w := httptest.NewRecorder()
	h.RemoveFriend(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("third party removal: status = %d, want 404", w.Code)
	}

	req = pathRequest(http.MethodDelete, "/api/friends/"+friend.FriendshipID,
		"DELETE /api/friends/{id}", "alice", nil)
	w = httptest.NewRecorder()
	h.RemoveFriend(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	listReq := authedRequest(http.MethodGet, "/api/friends", "alice", nil)
	w = httptest.NewRecorder()
	h.ListFriends(w, listReq)
	var friends []FriendResponse
	_ = json.Unmarshal(w.Body.Bytes(), &friends)
	if len(friends) != 0 {
		t.Errorf("got %d friends after removal, want 0", len(friends))
	}
}

func TestListFriends_Distance(t *testing.T) {
	h, locations, cipher := testFriendHandlers(t, "alice", "bob", "carol")
	ctx := context.Background()

	reqResp := sendRequest(t, h, "alice", "bob")
	acceptRequest(t, h, reqResp.ID, "bob")
	reqResp = sendRequest(t, h, "alice", "carol")
	acceptRequest(t, h, reqResp.ID, "carol")

	seed := func(userID string, lat, lon float64, vis location.Visibility) {
		encrypted, err := cipher.Encrypt(lat, lon)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if err := locations.Upsert(ctx, userID, encrypted, vis); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	seed("alice", 52.52, 13.405, location.VisibilityPublic)
	seed("bob", 52.53, 13.41, location.VisibilityPublic)
	// Carol's location is private, so no distance is shown for her.
	seed("carol", 52.54, 13.42, location.VisibilityPrivate)

	req := authedRequest(http.MethodGet, "/api/friends", "alice", nil)
	w := httptest.NewRecorder()
	h.ListFriends(w, req)

	var friends []FriendResponse
	if err := json.Unmarshal(w.Body.Bytes(), &friends); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(friends) != 2 {
		t.Fatalf("got %d friends, want 2", len(friends))
	}

	// Bob has a known distance and sorts first.
	if friends[0].UserID != "bob" {
		t.Errorf("first friend = %q, want bob", friends[0].UserID)
	}
	if friends[0].DistanceKm == nil {
		t.Fatal("expected a distance for bob")
	}
	if *friends[0].DistanceKm <= 0 || *friends[0].DistanceKm > 5 {
		t.Errorf("DistanceKm = %v, want a small positive value", *friends[0].DistanceKm)
	}
	if friends[0].LastActive == nil {
		t.Error("expected LastActive for bob")
	}

	if friends[1].UserID != "carol" {
		t.Errorf("second friend = %q, want carol", friends[1].UserID)
	}
	if friends[1].DistanceKm != nil {
		t.Error("private location leaked a distance for carol")
	}
	if friends[1].LastActive != nil {
		t.Error("private location leaked LastActive for carol")
	}
}

func TestListFriends_NoLocations(t *testing.T) {
	h, _, _ := testFriendHandlers(t, "alice", "bob")
	reqResp := sendRequest(t, h, "alice", "bob")
	acceptRequest(t, h, reqResp.ID, "bob")

	req := authedRequest(http.MethodGet, "/api/friends", "alice", nil)
	w := httptest.NewRecorder()
	h.ListFriends(w, req)

	var friends []FriendResponse
	if err := json.Unmarshal(w.Body.Bytes(), &friends); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(friends) != 1 {
		t.Fatalf("got %d friends, want 1", len(friends))
	}
	if friends[0].DistanceKm != nil {
		t.Error("expected no distance without stored locations")
	}
}
