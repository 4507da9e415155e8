package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kindred-social/kindred/internal/auth"
	"github.com/kindred-social/kindred/internal/middleware"
)

// Authentication header names, matching the chat server's conventions.
const (
	HeaderAuthToken = "X-Auth-Token"
	HeaderUserID    = "X-User-Id"
)

// RequireAuth verifies credentials on every request and puts the
// verified user ID on the context. Handlers behind it can trust
// middleware.GetUserID. Two credential forms are accepted: a
// service-issued Bearer access token (when sessions is non-nil), or
// the chat identity headers verified against the provider.
func RequireAuth(verifier auth.Verifier, sessions *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if sessions != nil {
				if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					claims, err := sessions.ValidateToken(bearer)
					if err != nil || claims.Type != auth.TokenTypeAccess {
						ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
						WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired session token")
						return
					}
					ctx = middleware.SetUserID(ctx, claims.Subject)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			authToken := r.Header.Get(HeaderAuthToken)
			userID := r.Header.Get(HeaderUserID)
			if authToken == "" || userID == "" {
				ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
				WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Missing authentication headers")
				return
			}

			identity, err := verifier.Verify(ctx, authToken, userID)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrProviderUnavailable):
					ctx = middleware.SetErrorCode(ctx, ErrCodeProviderUnavailable)
					WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "Unable to verify credentials at this time")
				default:
					ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
					WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid authentication credentials")
				}
				return
			}

			ctx = middleware.SetUserID(ctx, identity.UserID)
			slog.DebugContext(ctx, "authenticated request",
				"user_id", identity.UserID,
				"username", identity.Username,
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
