package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Chat verification errors.
var (
	ErrMissingCredentials  = errors.New("missing chat credentials")
	ErrInvalidCredentials  = errors.New("invalid chat credentials")
	ErrProviderUnavailable = errors.New("chat identity provider unavailable")
)

// chatVerifyTimeout bounds a single verification round trip.
const chatVerifyTimeout = 3 * time.Second

// Identity is the verified chat identity of a caller.
type Identity struct {
	UserID   string
	Username string
}

// Verifier checks session credentials against an identity provider.
type Verifier interface {
	Verify(ctx context.Context, authToken, userID string) (*Identity, error)
}

// ChatVerifier verifies sessions against the chat server's /api/v1/me
// endpoint. The chat server is the source of truth for user identity;
// this service never stores passwords.
type ChatVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewChatVerifier creates a verifier for the chat server at baseURL.
func NewChatVerifier(baseURL string) *ChatVerifier {
	return &ChatVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: chatVerifyTimeout},
	}
}

// WithAPIKey attaches the service API key the chat server expects on
// server-to-server calls. No-op when key is empty.
func (v *ChatVerifier) WithAPIKey(key string) *ChatVerifier {
	v.apiKey = key
	return v
}

// meResponse is the subset of the chat server's "me" payload we use.
type meResponse struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Success  bool   `json:"success"`
}

// Verify checks the token/user-id pair against the chat server and
// returns the confirmed identity. The chat server must confirm the
// same user id the caller claims.
func (v *ChatVerifier) Verify(ctx context.Context, authToken, userID string) (*Identity, error) {
	if authToken == "" || userID == "" {
		return nil, ErrMissingCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v1/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("X-Auth-Token", authToken)
	req.Header.Set("X-User-Id", userID)
	if v.apiKey != "" {
		req.Header.Set("X-Api-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err)
	}
	if me.ID == "" || me.ID != userID {
		return nil, ErrInvalidCredentials
	}

	return &Identity{UserID: me.ID, Username: me.Username}, nil
}
