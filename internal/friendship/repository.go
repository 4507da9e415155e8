package friendship

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Repository defines storage operations for friend requests and
// friendships.
type Repository interface {
	// CreateRequest stores a new friend request.
	CreateRequest(ctx context.Context, req *Request) error

	// GetPendingRequest returns the pending request with the given ID
	// addressed to receiverID, or ErrRequestNotFound.
	GetPendingRequest(ctx context.Context, requestID, receiverID string) (*Request, error)

	// HasPendingRequestBetween reports whether a pending request exists
	// between the two users, in either direction.
	HasPendingRequestBetween(ctx context.Context, userA, userB string) (bool, error)

	// UpdateRequestStatus transitions a request out of pending.
	UpdateRequestStatus(ctx context.Context, requestID string, status Status, updatedAt time.Time) error

	// ListPendingRequests returns pending requests addressed to receiverID.
	ListPendingRequests(ctx context.Context, receiverID string) ([]Request, error)

	// CreateFriendship stores a new friendship row.
	CreateFriendship(ctx context.Context, f *Friendship) error

	// GetFriendship returns the friendship with the given ID if userID
	// is one of its sides, or ErrFriendshipNotFound.
	GetFriendship(ctx context.Context, friendshipID, userID string) (*Friendship, error)

	// AreFriends reports whether a friendship exists between the two
	// users, in either order.
	AreFriends(ctx context.Context, userA, userB string) (bool, error)

	// DeleteFriendship removes a friendship row.
	DeleteFriendship(ctx context.Context, friendshipID string) error

	// ListFriendships returns all friendships involving userID.
	ListFriendships(ctx context.Context, userID string) ([]Friendship, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateRequest stores a new friend request.
func (r *PostgresRepository) CreateRequest(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO friendship_requests (id, sender_id, receiver_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.SenderID, req.ReceiverID, string(req.Status), req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create friend request: %w", err)
	}
	return nil
}

// GetPendingRequest returns the pending request addressed to receiverID.
func (r *PostgresRepository) GetPendingRequest(ctx context.Context, requestID, receiverID string) (*Request, error) {
	query := `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM friendship_requests
		WHERE id = $1 AND receiver_id = $2 AND status = 'pending'
	`
	var req Request
	var status string
	err := r.db.QueryRowContext(ctx, query, requestID, receiverID).Scan(
		&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friend request %s: %w", requestID, err)
	}
	req.Status = Status(status)
	return &req, nil
}

// HasPendingRequestBetween checks both directions for a pending request.
func (r *PostgresRepository) HasPendingRequestBetween(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friendship_requests
			WHERE status = 'pending'
			  AND ((sender_id = $1 AND receiver_id = $2)
			    OR (sender_id = $2 AND receiver_id = $1))
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userA, userB).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending requests: %w", err)
	}
	return exists, nil
}

// UpdateRequestStatus transitions a request out of pending.
func (r *PostgresRepository) UpdateRequestStatus(ctx context.Context, requestID string, status Status, updatedAt time.Time) error {
	query := `
		UPDATE friendship_requests
		SET status = $2, updated_at = $3
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, requestID, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update friend request %s: %w", requestID, err)
	}
	return nil
}

// ListPendingRequests returns pending requests addressed to receiverID.
func (r *PostgresRepository) ListPendingRequests(ctx context.Context, receiverID string) ([]Request, error) {
	query := `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM friendship_requests
		WHERE receiver_id = $1 AND status = 'pending'
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		var req Request
		var status string
		if err := rows.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		req.Status = Status(status)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friend requests: %w", err)
	}
	return requests, nil
}

// CreateFriendship stores a new friendship row.
func (r *PostgresRepository) CreateFriendship(ctx context.Context, f *Friendship) error {
	query := `
		INSERT INTO friendships (id, user1_id, user2_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, f.ID, f.User1ID, f.User2ID, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	return nil
}

// GetFriendship returns the friendship if userID is one of its sides.
func (r *PostgresRepository) GetFriendship(ctx context.Context, friendshipID, userID string) (*Friendship, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM friendships
		WHERE id = $1 AND (user1_id = $2 OR user2_id = $2)
	`
	var f Friendship
	err := r.db.QueryRowContext(ctx, query, friendshipID, userID).Scan(
		&f.ID, &f.User1ID, &f.User2ID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrFriendshipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friendship %s: %w", friendshipID, err)
	}
	return &f, nil
}

// AreFriends checks both orderings for an existing friendship.
func (r *PostgresRepository) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE (user1_id = $1 AND user2_id = $2)
			   OR (user1_id = $2 AND user2_id = $1)
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userA, userB).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// DeleteFriendship removes a friendship row.
func (r *PostgresRepository) DeleteFriendship(ctx context.Context, friendshipID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE id = $1`, friendshipID)
	if err != nil {
		return fmt.Errorf("failed to delete friendship %s: %w", friendshipID, err)
	}
	return nil
}

// ListFriendships returns all friendships involving userID.
func (r *PostgresRepository) ListFriendships(ctx context.Context, userID string) ([]Friendship, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM friendships
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friendships: %w", err)
	}
	defer rows.Close()

	var friendships []Friendship
	for rows.Next() {
		var f Friendship
		if err := rows.Scan(&f.ID, &f.User1ID, &f.User2ID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friendship: %w", err)
		}
		friendships = append(friendships, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate friendships: %w", err)
	}
	return friendships, nil
}

// InMemoryRepository implements Repository with in-memory maps.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu          sync.RWMutex
	requests    map[string]*Request
	friendships map[string]*Friendship
}

// NewInMemoryRepository creates a new in-memory friendship repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		requests:    make(map[string]*Request),
		friendships: make(map[string]*Friendship),
	}
}

// CreateRequest stores a new friend request.
func (r *InMemoryRepository) CreateRequest(ctx context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *req
	r.requests[req.ID] = &copied
	return nil
}

// GetPendingRequest returns the pending request addressed to receiverID.
func (r *InMemoryRepository) GetPendingRequest(ctx context.Context, requestID, receiverID string) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[requestID]
	if !ok || req.ReceiverID != receiverID || req.Status != StatusPending {
		return nil, ErrRequestNotFound
	}
	copied := *req
	return &copied, nil
}

// HasPendingRequestBetween checks both directions for a pending request.
func (r *InMemoryRepository) HasPendingRequestBetween(ctx context.Context, userA, userB string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.requests {
		if req.Status != StatusPending {
			continue
		}
		if (req.SenderID == userA && req.ReceiverID == userB) ||
			(req.SenderID == userB && req.ReceiverID == userA) {
			return true, nil
		}
	}
	return false, nil
}

// UpdateRequestStatus transitions a request out of pending.
func (r *InMemoryRepository) UpdateRequestStatus(ctx context.Context, requestID string, status Status, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[requestID]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = &updatedAt
	return nil
}

// ListPendingRequests returns pending requests addressed to receiverID.
func (r *InMemoryRepository) ListPendingRequests(ctx context.Context, receiverID string) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var requests []Request
	for _, req := range r.requests {
		if req.ReceiverID == receiverID && req.Status == StatusPending {
			requests = append(requests, *req)
		}
	}
	return requests, nil
}

// CreateFriendship stores a new friendship row.
func (r *InMemoryRepository) CreateFriendship(ctx context.Context, f *Friendship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *f
	r.friendships[f.ID] = &copied
	return nil
}

// GetFriendship returns the friendship if userID is one of its sides.
func (r *InMemoryRepository) GetFriendship(ctx context.Context, friendshipID, userID string) (*Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.friendships[friendshipID]
	if !ok || !f.Involves(userID) {
		return nil, ErrFriendshipNotFound
	}
	copied := *f
	return &copied, nil
}

// AreFriends checks both orderings for an existing friendship.
func (r *InMemoryRepository) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.friendships {
		if (f.User1ID == userA && f.User2ID == userB) ||
			(f.User1ID == userB && f.User2ID == userA) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteFriendship removes a friendship row.
func (r *InMemoryRepository) DeleteFriendship(ctx context.Context, friendshipID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.friendships, friendshipID)
	return nil
}

// ListFriendships returns all friendships involving userID.
func (r *InMemoryRepository) ListFriendships(ctx context.Context, userID string) ([]Friendship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var friendships []Friendship
	for _, f := range r.friendships {
		if f.Involves(userID) {
			friendships = append(friendships, *f)
		}
	}
	return friendships, nil
}
