// Package profile provides models and repository for user profiles.
package profile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kindred-social/kindred/internal/validate"
)

// Profile validation errors.
var (
	ErrUserIDMismatch  = errors.New("user ID in path must match user ID in profile")
	ErrInvalidBirthday = errors.New("birthday must be in yyyy-mm-dd format")
)

// DefaultBirthday is the placeholder birthday for users who have not set one.
const DefaultBirthday = "1970-01-01"

var birthdayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Core holds the identity fields of a profile.
type Core struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"` // Object key or URL; empty when unset
}

// Extended holds the optional self-description fields.
type Extended struct {
	Birthday    string   `json:"birthday"` // yyyy-mm-dd
	Hometown    string   `json:"hometown,omitempty"`
	Description string   `json:"description,omitempty"`
	Interests   []string `json:"interests,omitempty"`
}

// Profile combines core and extended fields. This is the unit of
// storage and of the API surface.
type Profile struct {
	Core     Core     `json:"coreProfile"`
	Extended Extended `json:"extendedProfile"`
}

// Default returns the placeholder profile served when a user has no
// stored profile. Reads never 404 on a missing profile.
func Default(userID string) *Profile {
	return &Profile{
		Core: Core{
			UserID:   userID,
			Username: "DefaultUsername",
			Name:     "Default Name",
		},
		Extended: Extended{
			Birthday: DefaultBirthday,
		},
	}
}

// Validate checks field constraints before persisting. Name and
// description go through the shared sanitizers; the sanitized values
// are written back.
func (p *Profile) Validate() error {
	if p.Core.UserID == "" {
		return errors.New("user_id is required")
	}
	if p.Core.Username == "" {
		return errors.New("username is required")
	}

	name, err := validate.DisplayName(p.Core.Name)
	if err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}
	p.Core.Name = name

	desc, err := validate.AboutMe(p.Extended.Description)
	if err != nil {
		return fmt.Errorf("invalid description: %w", err)
	}
	p.Extended.Description = desc

	// Avatars given as full URLs must be public HTTPS; bucket object
	// keys pass through untouched.
	if strings.Contains(p.Core.Avatar, "://") {
		avatar, err := validate.AvatarURL(p.Core.Avatar)
		if err != nil {
			return fmt.Errorf("invalid avatar: %w", err)
		}
		p.Core.Avatar = avatar
	}

	if p.Extended.Birthday == "" {
		p.Extended.Birthday = DefaultBirthday
	}
	if !birthdayPattern.MatchString(p.Extended.Birthday) {
		return ErrInvalidBirthday
	}
	return nil
}
