package api

import (
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/auth"
	"github.com/kindred-social/kindred/internal/middleware"
)

// RouterConfig collects the handler groups and cross-cutting pieces
// the router mounts. Handlers left nil have their routes omitted.
type RouterConfig struct {
	Location     *LocationHandlers
	Profile      *ProfileHandlers
	Friend       *FriendHandlers
	Favorite     *FavoriteHandlers
	Block        *BlockHandlers
	Album        *AlbumHandlers
	Notification *NotificationHandlers
	Health       *HealthHandlers
	Session      *SessionHandlers

	// Verifier authenticates /api and /ws requests.
	Verifier auth.Verifier

	// Sessions, when set, lets RequireAuth accept Bearer access tokens
	// issued by the session endpoints.
	Sessions *auth.JWTService

	// MetricsHandler serves GET /metrics when set (promhttp).
	MetricsHandler http.Handler
}

// NewRouter builds the ServeMux for the API server. Everything under
// /api and /ws requires chat-identity authentication; probes, metrics
// and the root service banner do not.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()
	requireAuth := RequireAuth(cfg.Verifier, cfg.Sessions)

	authed := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	// Session creation authenticates with chat headers itself; it is
	// the entry point, not behind RequireAuth.
	if cfg.Session != nil {
		mux.HandleFunc("POST /api/auth/sessions", cfg.Session.CreateSession)
		mux.HandleFunc("POST /api/auth/sessions/refresh", cfg.Session.RefreshSession)
	}

	if cfg.Location != nil {
		authed("POST /api/locations/update", cfg.Location.UpdateLocation)
		authed("POST /api/locations/nearby", cfg.Location.Nearby)
		authed("POST /api/locations/nearby_by_coordinates", cfg.Location.NearbyByCoordinates)
	}

	if cfg.Profile != nil {
		authed("GET /api/profiles/me", cfg.Profile.GetMyProfile)
		authed("GET /api/profiles/{user_id}", cfg.Profile.GetProfile)
		authed("PUT /api/profiles/{user_id}", cfg.Profile.UpdateProfile)
		authed("GET /api/profiles/{user_id}/interests", cfg.Profile.GetUserInterests)
		authed("GET /api/interests", cfg.Profile.GetInterestCatalog)
	}

	if cfg.Friend != nil {
		authed("GET /api/friends", cfg.Friend.ListFriends)
		authed("DELETE /api/friends/{id}", cfg.Friend.RemoveFriend)
		authed("POST /api/friends/requests", cfg.Friend.SendRequest)
		authed("GET /api/friends/requests", cfg.Friend.ListRequests)
		authed("POST /api/friends/requests/{id}/accept", cfg.Friend.AcceptRequest)
		authed("POST /api/friends/requests/{id}/reject", cfg.Friend.RejectRequest)
	}

	if cfg.Favorite != nil {
		authed("POST /api/favorites", cfg.Favorite.AddFavorite)
		authed("GET /api/favorites", cfg.Favorite.ListFavorites)
		authed("DELETE /api/favorites/{id}", cfg.Favorite.RemoveFavorite)
	}

	if cfg.Block != nil {
		authed("POST /api/blocks", cfg.Block.BlockUser)
		authed("GET /api/blocks", cfg.Block.ListBlocks)
		authed("DELETE /api/blocks/{user_id}", cfg.Block.UnblockUser)
	}

	if cfg.Album != nil {
		authed("POST /api/albums", cfg.Album.CreateAlbum)
		authed("GET /api/albums", cfg.Album.ListAlbums)
		authed("GET /api/albums/{id}", cfg.Album.GetAlbum)
		authed("PUT /api/albums/{id}", cfg.Album.UpdateAlbum)
		authed("DELETE /api/albums/{id}", cfg.Album.DeleteAlbum)
		authed("POST /api/albums/{id}/photos", cfg.Album.UploadPhoto)
		authed("GET /api/albums/{id}/photos", cfg.Album.ListPhotos)
		authed("POST /api/albums/{id}/access", cfg.Album.RequestAccess)
		authed("GET /api/albums/{id}/access", cfg.Album.ListAccessRequests)
		authed("POST /api/albums/{id}/access/grant", cfg.Album.GrantAccess)
		authed("POST /api/albums/{id}/access/deny", cfg.Album.DenyAccess)
	}

	if cfg.Notification != nil {
		authed("GET /ws/notifications", cfg.Notification.Subscribe)
	}

	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.Health)
		mux.HandleFunc("GET /ready", cfg.Health.Ready)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"kindred-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}
