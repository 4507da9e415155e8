// Package album provides models, repository and service for photo
// albums with per-album view permissions.
package album

import (
	"errors"
	"fmt"
	"time"

	"github.com/kindred-social/kindred/internal/validate"
)

// Permission controls who may view an album.
type Permission string

// Album permissions.
const (
	// PermissionPublic albums are visible to everyone.
	PermissionPublic Permission = "public"

	// PermissionPrivate albums are visible only to their owner.
	PermissionPrivate Permission = "private"

	// PermissionRestricted albums are visible to the owner and to
	// users on the allowed list.
	PermissionRestricted Permission = "restricted"
)

// Album errors.
var (
	ErrAlbumNotFound          = errors.New("album not found")
	ErrNotAuthorized          = errors.New("not authorized to view this album")
	ErrNotOwner               = errors.New("not the album owner")
	ErrInvalidPermission      = errors.New("invalid permission")
	ErrAccessRequestNotFound  = errors.New("access request not found")
	ErrDuplicateAccessRequest = errors.New("an access request is already pending")
)

// ParsePermission validates a permission string at the boundary.
// Empty input defaults to private.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case "":
		return PermissionPrivate, nil
	case PermissionPublic, PermissionPrivate, PermissionRestricted:
		return Permission(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
}

// Album is a collection of photos with a view permission.
type Album struct {
	ID           string     `json:"album_id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Images       []string   `json:"images"` // Object keys in the photo bucket
	Permission   Permission `json:"permission"`
	AllowedUsers []string   `json:"allowed_users,omitempty"` // Only for restricted albums
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// CanView reports whether userID may view the album.
func (a *Album) CanView(userID string) bool {
	if userID == a.UserID {
		return true
	}
	switch a.Permission {
	case PermissionPublic:
		return true
	case PermissionRestricted:
		for _, allowed := range a.AllowedUsers {
			if allowed == userID {
				return true
			}
		}
	}
	return false
}

// IsAllowed reports whether userID is on the allowed list.
func (a *Album) IsAllowed(userID string) bool {
	for _, allowed := range a.AllowedUsers {
		if allowed == userID {
			return true
		}
	}
	return false
}

// Validate checks field constraints before persisting. Sanitized
// title and description are written back.
func (a *Album) Validate() error {
	if a.UserID == "" {
		return errors.New("user_id is required")
	}

	title, err := validate.AlbumTitle(a.Title)
	if err != nil {
		return fmt.Errorf("invalid title: %w", err)
	}
	a.Title = title

	desc, err := validate.Description(a.Description)
	if err != nil {
		return fmt.Errorf("invalid description: %w", err)
	}
	a.Description = desc

	if _, err := ParsePermission(string(a.Permission)); err != nil {
		return err
	}
	if a.Permission == "" {
		a.Permission = PermissionPrivate
	}
	return nil
}

// AccessRequest is a pending request to view a restricted album.
type AccessRequest struct {
	ID          string    `json:"id"`
	AlbumID     string    `json:"album_id"`
	RequesterID string    `json:"requester_id"`
	CreatedAt   time.Time `json:"created_at"`
}
