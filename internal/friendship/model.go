// Package friendship provides models, repository and service for friend
// requests and friendships.
package friendship

import (
	"errors"
	"time"
)

// Status of a friend request.
type Status string

// Request states.
const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Service errors.
var (
	ErrSelfRequest        = errors.New("cannot send friend request to yourself")
	ErrDuplicateRequest   = errors.New("a pending friend request already exists between these users")
	ErrAlreadyFriends     = errors.New("these users are already friends")
	ErrRequestNotFound    = errors.New("friend request not found")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrReceiverNotFound   = errors.New("receiver not found")
)

// Request is a pending, accepted or rejected friend request.
type Request struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Friendship links two users. The pair is unordered; either side may
// appear as User1.
type Friendship struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the friend's user ID from the perspective of userID.
func (f *Friendship) Other(userID string) string {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}

// Involves reports whether userID is one of the two sides.
func (f *Friendship) Involves(userID string) bool {
	return f.User1ID == userID || f.User2ID == userID
}
