package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/favorite"
	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/profile"
)

// AddFavoriteBody is the request body for adding a favorite.
type AddFavoriteBody struct {
	FavoriteUserID string `json:"favorite_user_id"`
}

// FavoriteResponse is one favorite with the favorited user's profile
// joined in.
type FavoriteResponse struct {
	favorite.Favorite
	Profile profile.Core `json:"profile"`
}

// FavoriteHandlers holds dependencies for favorite HTTP handlers.
type FavoriteHandlers struct {
	svc      *favorite.Service
	profiles profile.Repository
}

// NewFavoriteHandlers creates a new FavoriteHandlers instance.
func NewFavoriteHandlers(svc *favorite.Service, profiles profile.Repository) *FavoriteHandlers {
	return &FavoriteHandlers{svc: svc, profiles: profiles}
}

// AddFavorite handles POST /api/favorites.
func (h *FavoriteHandlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var body AddFavoriteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FavoriteUserID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Favorite user ID is required")
		return
	}

	f, err := h.svc.Add(ctx, userID, body.FavoriteUserID)
	if err != nil {
		h.writeFavoriteError(w, r, err)
		return
	}

	writeJSON(w, ctx, http.StatusCreated, FavoriteResponse{
		Favorite: *f,
		Profile:  h.coreProfile(r, f.FavoriteUserID),
	})
}

// RemoveFavorite handles DELETE /api/favorites/{id}.
func (h *FavoriteHandlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.svc.Remove(ctx, r.PathValue("id"), userID); err != nil {
		h.writeFavoriteError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

// ListFavorites handles GET /api/favorites - the caller's favorites
// with profiles joined in.
func (h *FavoriteHandlers) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	favorites, err := h.svc.List(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list favorites", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list favorites")
		return
	}

	resp := make([]FavoriteResponse, 0, len(favorites))
	for _, f := range favorites {
		resp = append(resp, FavoriteResponse{
			Favorite: f,
			Profile:  h.coreProfile(r, f.FavoriteUserID),
		})
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

func (h *FavoriteHandlers) coreProfile(r *http.Request, userID string) profile.Core {
	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		return profile.Default(userID).Core
	}
	return p.Core
}

func (h *FavoriteHandlers) writeFavoriteError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, favorite.ErrAlreadyFavorited):
		ctx = middleware.SetErrorCode(ctx, ErrCodeConflict)
		WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, favorite.ErrUserNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
	case errors.Is(err, favorite.ErrFavoriteNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Favorite not found")
	case errors.Is(err, favorite.ErrNotOwner):
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, err.Error())
	default:
		slog.ErrorContext(ctx, "favorite operation failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}
