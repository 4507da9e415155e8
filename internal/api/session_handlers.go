package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/auth"
	"github.com/kindred-social/kindred/internal/middleware"
)

// SessionResponse is the token pair issued for a verified identity.
type SessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshBody is the request body for refreshing a session.
type RefreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionHandlers exchanges chat credentials for service-issued JWT
// sessions, so that subsequent requests avoid a round trip to the chat
// provider.
type SessionHandlers struct {
	verifier auth.Verifier
	sessions *auth.JWTService
}

// NewSessionHandlers creates a new SessionHandlers instance.
func NewSessionHandlers(verifier auth.Verifier, sessions *auth.JWTService) *SessionHandlers {
	return &SessionHandlers{verifier: verifier, sessions: sessions}
}

// CreateSession handles POST /api/auth/sessions. The caller presents
// chat credentials in the usual headers and receives an access/refresh
// token pair.
func (h *SessionHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	authToken := r.Header.Get(HeaderAuthToken)
	userID := r.Header.Get(HeaderUserID)
	if authToken == "" || userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing authentication headers")
		return
	}

	identity, err := h.verifier.Verify(ctx, authToken, userID)
	if err != nil {
		if errors.Is(err, auth.ErrProviderUnavailable) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeProviderUnavailable)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "Unable to verify credentials at this time")
			return
		}
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid authentication credentials")
		return
	}

	h.issueTokens(w, ctx, identity.UserID, identity.Username)
}

// RefreshSession handles POST /api/auth/sessions/refresh. A valid
// refresh token yields a fresh access/refresh pair; access tokens are
// rejected here.
func (h *SessionHandlers) RefreshSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body RefreshBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Refresh token is required")
		return
	}

	claims, err := h.sessions.ValidateToken(body.RefreshToken)
	if err != nil || claims.Type != auth.TokenTypeRefresh {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid refresh token")
		return
	}

	h.issueTokens(w, ctx, claims.Subject, claims.Username)
}

func (h *SessionHandlers) issueTokens(w http.ResponseWriter, ctx context.Context, userID, username string) {
	accessToken, err := h.sessions.GenerateAccessToken(userID, username)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate access token", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create session")
		return
	}
	refreshToken, err := h.sessions.GenerateRefreshToken(userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate refresh token", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create session")
		return
	}

	writeJSON(w, ctx, http.StatusOK, SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(auth.AccessTokenExpiry.Seconds()),
	})
}
