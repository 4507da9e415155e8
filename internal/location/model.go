package location

import (
	"errors"
	"fmt"
	"time"
)

// Visibility controls whether a stored location is exposed to other
// users' proximity queries.
type Visibility string

// Visibility states.
const (
	// VisibilityPublic locations are returned to all non-blocking
	// queries, distance included.
	VisibilityPublic Visibility = "public"

	// VisibilityHidden locations participate in proximity results and
	// carry a distance, but signal the consuming client to suppress
	// user-facing display. The engine does not distinguish hidden from
	// public for inclusion.
	VisibilityHidden Visibility = "hidden"

	// VisibilityPrivate locations are excluded from every other user's
	// query. The owner can still read and update their own record.
	VisibilityPrivate Visibility = "private"
)

// ErrInvalidVisibility is returned when parsing an unknown visibility value.
var ErrInvalidVisibility = errors.New("invalid visibility")

// ParseVisibility validates a visibility string at the boundary.
// Empty input defaults to public.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case "":
		return VisibilityPublic, nil
	case VisibilityPublic, VisibilityHidden, VisibilityPrivate:
		return Visibility(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, s)
	}
}

// Recency windows for proximity queries. Policy constants, not
// per-request parameters: a "nearby now" feature prefers very fresh
// fixes, and a week-old fix is a degraded-but-useful fallback.
const (
	PrimaryWindow   = 48 * time.Hour
	SecondaryWindow = 7 * 24 * time.Hour
)

// WindowLabel names a recency window for response reporting.
func WindowLabel(w time.Duration) string {
	if w == SecondaryWindow {
		return "7 days"
	}
	return "48 hours"
}

// Record is a user's latest stored location. One record per user;
// every update overwrites in place.
type Record struct {
	UserID        string
	EncryptedData string
	Visibility    Visibility
	Timestamp     time.Time
}
