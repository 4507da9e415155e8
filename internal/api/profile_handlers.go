package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/geo"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/profile"
)

// ProfileResponse wraps a profile with an optional coarse location
// area. CoarseArea is a truncated geohash, never precise coordinates.
type ProfileResponse struct {
	profile.Profile
	CoarseArea string `json:"coarse_area,omitempty"`
}

// ProfileHandlers holds dependencies for profile HTTP handlers.
type ProfileHandlers struct {
	profiles  profile.Repository
	locations location.Repository
	cipher    *location.Cipher
}

// NewProfileHandlers creates a new ProfileHandlers instance.
// locations and cipher may be nil to disable coarse area display.
func NewProfileHandlers(profiles profile.Repository, locations location.Repository, cipher *location.Cipher) *ProfileHandlers {
	return &ProfileHandlers{
		profiles:  profiles,
		locations: locations,
		cipher:    cipher,
	}
}

// GetMyProfile handles GET /api/profiles/me - returns the caller's
// profile, or a default profile if none is stored.
func (h *ProfileHandlers) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	h.writeProfile(w, r, userID, userID)
}

// GetProfile handles GET /api/profiles/{user_id} - returns another
// user's profile, or a default profile if none is stored. A missing
// profile is never a 404.
func (h *ProfileHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	targetID := r.PathValue("user_id")
	if targetID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Missing user ID")
		return
	}
	h.writeProfile(w, r, targetID, middleware.GetUserID(r.Context()))
}

func (h *ProfileHandlers) writeProfile(w http.ResponseWriter, r *http.Request, targetID, viewerID string) {
	ctx := r.Context()

	p, err := h.profiles.Get(ctx, targetID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		p = profile.Default(targetID)
	} else if err != nil {
		slog.ErrorContext(ctx, "failed to fetch profile", "error", err, "user_id", targetID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch profile")
		return
	}

	resp := ProfileResponse{Profile: *p}
	if viewerID != targetID {
		resp.CoarseArea = h.coarseArea(r, targetID)
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// coarseArea returns a truncated geohash of the user's last location
// for display on their profile. Private locations yield nothing; any
// lookup or decrypt failure degrades to an empty string.
func (h *ProfileHandlers) coarseArea(r *http.Request, userID string) string {
	if h.locations == nil || h.cipher == nil {
		return ""
	}
	ctx := r.Context()

	rec, err := h.locations.GetSelf(ctx, userID, location.SecondaryWindow)
	if err != nil {
		return ""
	}
	if rec.Visibility == location.VisibilityPrivate {
		return ""
	}

	lat, lon, err := h.cipher.Decrypt(rec.EncryptedData)
	if err != nil {
		slog.WarnContext(ctx, "failed to decrypt location for coarse area", "user_id", userID)
		return ""
	}
	return geo.CoarseArea(lat, lon)
}

// UpdateProfile handles PUT /api/profiles/{user_id} - upserts the
// caller's own profile. The path ID must match both the body ID and
// the authenticated user.
func (h *ProfileHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	targetID := r.PathValue("user_id")
	if targetID != userID {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Cannot update another user's profile")
		return
	}

	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	if p.Core.UserID != targetID {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "User ID in path must match user ID in profile")
		return
	}

	if err := p.Validate(); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.profiles.Upsert(ctx, &p); err != nil {
		slog.ErrorContext(ctx, "failed to upsert profile", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Profile update failed")
		return
	}

	writeJSON(w, ctx, http.StatusOK, p)
}

// GetUserInterests handles GET /api/profiles/{user_id}/interests -
// returns the interests stored on a user's profile.
func (h *ProfileHandlers) GetUserInterests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	targetID := r.PathValue("user_id")
	p, err := h.profiles.Get(ctx, targetID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		p = profile.Default(targetID)
	} else if err != nil {
		slog.ErrorContext(ctx, "failed to fetch profile", "error", err, "user_id", targetID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to fetch interests")
		return
	}

	interests := p.Extended.Interests
	if interests == nil {
		interests = []string{}
	}
	writeJSON(w, ctx, http.StatusOK, map[string][]string{"interests": interests})
}

// GetInterestCatalog handles GET /api/interests - returns the static
// interest catalog.
func (h *ProfileHandlers) GetInterestCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r.Context(), http.StatusOK, profile.InterestCatalog())
}
