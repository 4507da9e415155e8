package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/kindred-social/kindred/internal/friendship"
	"github.com/kindred-social/kindred/internal/geo"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/profile"
)

// SendFriendRequestBody is the request body for sending a friend request.
type SendFriendRequestBody struct {
	ReceiverID string `json:"receiver_id"`
}

// FriendRequestResponse is a friend request with the sender's profile
// joined in.
type FriendRequestResponse struct {
	friendship.Request
	SenderProfile profile.Core `json:"sender_profile"`
}

// FriendResponse is one friendship from the caller's perspective, with
// the friend's profile and, when both sides share locations, the
// distance between them.
type FriendResponse struct {
	FriendshipID string       `json:"friendship_id"`
	UserID       string       `json:"user_id"`
	CreatedAt    time.Time    `json:"created_at"`
	Profile      profile.Core `json:"profile"`
	DistanceKm   *float64     `json:"distance_km,omitempty"`
	LastActive   *time.Time   `json:"last_active,omitempty"`
}

// FriendHandlers holds dependencies for friendship HTTP handlers.
type FriendHandlers struct {
	svc       *friendship.Service
	profiles  profile.Repository
	locations location.Repository
	cipher    *location.Cipher
}

// NewFriendHandlers creates a new FriendHandlers instance. locations
// and cipher may be nil to disable distances in friend lists.
func NewFriendHandlers(svc *friendship.Service, profiles profile.Repository, locations location.Repository, cipher *location.Cipher) *FriendHandlers {
	return &FriendHandlers{
		svc:       svc,
		profiles:  profiles,
		locations: locations,
		cipher:    cipher,
	}
}

// SendRequest handles POST /api/friends/requests.
func (h *FriendHandlers) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var body SendFriendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ReceiverID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Receiver ID is required")
		return
	}

	req, err := h.svc.SendRequest(ctx, userID, body.ReceiverID)
	if err != nil {
		h.writeFriendError(w, r, err)
		return
	}

	writeJSON(w, ctx, http.StatusCreated, FriendRequestResponse{
		Request:       *req,
		SenderProfile: h.coreProfile(r, userID),
	})
}

// ListRequests handles GET /api/friends/requests - pending requests
// addressed to the caller, sender profiles joined in.
func (h *FriendHandlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	requests, err := h.svc.ListPendingRequests(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list friend requests", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list friend requests")
		return
	}

	resp := make([]FriendRequestResponse, 0, len(requests))
	for _, req := range requests {
		resp = append(resp, FriendRequestResponse{
			Request:       req,
			SenderProfile: h.coreProfile(r, req.SenderID),
		})
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// AcceptRequest handles POST /api/friends/requests/{id}/accept.
func (h *FriendHandlers) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	f, err := h.svc.AcceptRequest(ctx, r.PathValue("id"), userID)
	if err != nil {
		h.writeFriendError(w, r, err)
		return
	}

	writeJSON(w, ctx, http.StatusOK, h.friendView(r, f, userID))
}

// RejectRequest handles POST /api/friends/requests/{id}/reject.
func (h *FriendHandlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.svc.RejectRequest(ctx, r.PathValue("id"), userID); err != nil {
		h.writeFriendError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

// RemoveFriend handles DELETE /api/friends/{id} - id is the
// friendship ID.
func (h *FriendHandlers) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.svc.RemoveFriend(ctx, r.PathValue("id"), userID); err != nil {
		h.writeFriendError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

// ListFriends handles GET /api/friends - all friendships of the
// caller, closest first when distances are known.
func (h *FriendHandlers) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	friendships, err := h.svc.ListFriends(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list friends", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list friends")
		return
	}

	resp := make([]FriendResponse, 0, len(friendships))
	for i := range friendships {
		resp = append(resp, h.friendView(r, &friendships[i], userID))
	}

	// Friends with a known distance sort first, ascending.
	sort.SliceStable(resp, func(i, j int) bool {
		di, dj := resp[i].DistanceKm, resp[j].DistanceKm
		if di == nil {
			return false
		}
		if dj == nil {
			return true
		}
		return *di < *dj
	})

	writeJSON(w, ctx, http.StatusOK, resp)
}

// friendView assembles the caller-facing view of one friendship.
func (h *FriendHandlers) friendView(r *http.Request, f *friendship.Friendship, userID string) FriendResponse {
	friendID := f.Other(userID)
	resp := FriendResponse{
		FriendshipID: f.ID,
		UserID:       friendID,
		CreatedAt:    f.CreatedAt,
		Profile:      h.coreProfile(r, friendID),
	}

	if h.locations == nil || h.cipher == nil {
		return resp
	}
	ctx := r.Context()

	friendRec, err := h.locations.GetSelf(ctx, friendID, location.SecondaryWindow)
	if err != nil || friendRec.Visibility == location.VisibilityPrivate {
		return resp
	}
	lastActive := friendRec.Timestamp
	resp.LastActive = &lastActive

	selfRec, err := h.locations.GetSelf(ctx, userID, location.SecondaryWindow)
	if err != nil {
		return resp
	}

	selfLat, selfLon, err := h.cipher.Decrypt(selfRec.EncryptedData)
	if err != nil {
		return resp
	}
	friendLat, friendLon, err := h.cipher.Decrypt(friendRec.EncryptedData)
	if err != nil {
		return resp
	}

	distance := geo.RoundKm(geo.DistanceKm(selfLat, selfLon, friendLat, friendLon))
	resp.DistanceKm = &distance
	return resp
}

// coreProfile fetches a user's core profile, falling back to the
// default placeholder.
func (h *FriendHandlers) coreProfile(r *http.Request, userID string) profile.Core {
	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		return profile.Default(userID).Core
	}
	return p.Core
}

// writeFriendError maps friendship service errors onto the API envelope.
func (h *FriendHandlers) writeFriendError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, friendship.ErrSelfRequest),
		errors.Is(err, friendship.ErrDuplicateRequest),
		errors.Is(err, friendship.ErrAlreadyFriends):
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, friendship.ErrReceiverNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
	case errors.Is(err, friendship.ErrRequestNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Friend request not found")
	case errors.Is(err, friendship.ErrFriendshipNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Friendship not found")
	default:
		slog.ErrorContext(ctx, "friendship operation failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}
