package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/kindred-social/kindred/internal/middleware"
)

var (
	// ErrNilRepository is returned when a nil repository is passed to logging functions.
	ErrNilRepository = errors.New("audit repository cannot be nil")
	// ErrInvalidEntityType is returned when an invalid entity type is provided.
	ErrInvalidEntityType = errors.New("invalid audit entity type")
	// ErrInvalidEntityID is returned when an invalid entity ID is provided.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned when an invalid action is provided.
	ErrInvalidAction = errors.New("invalid audit action")
)

// ValidEntityTypes defines the allowed entity types for audit logging.
var ValidEntityTypes = map[string]bool{
	"user":       true,
	"profile":    true,
	"location":   true,
	"album":      true,
	"friendship": true,
}

// ValidActions defines the allowed actions for audit logging.
var ValidActions = map[string]bool{
	"update_location":    true,
	"query_nearby":       true,
	"view_distance":      true,
	"block_user":         true,
	"unblock_user":       true,
	"grant_album_access": true,
	"deny_album_access":  true,
	"view_album_photos":  true,
	"export_user_data":   true,
}

// validateLogEntry validates the required fields of a log entry against whitelists.
func validateLogEntry(entityType, entityID, action string) error {
	if entityType == "" || !ValidEntityTypes[entityType] {
		return ErrInvalidEntityType
	}
	if entityID == "" {
		return ErrInvalidEntityID
	}
	if action == "" || !ValidActions[action] {
		return ErrInvalidAction
	}
	return nil
}

// extractIPAddress extracts the client IP address from an HTTP request.
// It checks X-Forwarded-For, X-Real-IP, and RemoteAddr in that order,
// stripping the port when one is present.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client.
		firstIP := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			firstIP = xff[:idx]
		}
		firstIP = strings.TrimSpace(firstIP)
		if firstIP != "" {
			if host, _, err := net.SplitHostPort(firstIP); err == nil {
				return host
			}
			return firstIP
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if host, _, err := net.SplitHostPort(xri); err == nil {
			return host
		}
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// LogAccess records an access event, taking the acting user and request
// ID from the context. Fail-closed: an audit write failure is returned
// to the caller rather than swallowed.
func LogAccess(ctx context.Context, repo Repository, entityType, entityID, action string) error {
	if repo == nil {
		return ErrNilRepository
	}
	if err := validateLogEntry(entityType, entityID, action); err != nil {
		return err
	}

	entry := LogEntry{
		UserID:     middleware.GetUserID(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		RequestID:  middleware.GetRequestID(ctx),
	}

	_, err := repo.LogAccess(entry)
	return err
}

// LogAccessFromRequest records an access event with HTTP request
// metadata: acting user, request ID, client IP, and user agent.
func LogAccessFromRequest(r *http.Request, repo Repository, entityType, entityID, action string) error {
	if repo == nil {
		return ErrNilRepository
	}
	if err := validateLogEntry(entityType, entityID, action); err != nil {
		return err
	}

	entry := LogEntry{
		UserID:     middleware.GetUserID(r.Context()),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		RequestID:  middleware.GetRequestID(r.Context()),
		IPAddress:  extractIPAddress(r),
		UserAgent:  r.UserAgent(),
	}

	_, err := repo.LogAccess(entry)
	return err
}
