// Package block provides storage for user block lists. The nearby
// handlers consume BlockedSet to keep blocked and blocking users out
// of each other's proximity results.
package block

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSelfBlock is returned when a user tries to block themselves.
var ErrSelfBlock = errors.New("cannot block yourself")

// Block records that blocker has blocked blocked.
type Block struct {
	BlockerID string    `json:"blocker_id"`
	BlockedID string    `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines storage operations for block lists.
type Repository interface {
	// Block records a block. Idempotent: blocking twice is not an error.
	Block(ctx context.Context, blockerID, blockedID string) error

	// Unblock removes a block. Removing a non-existent block is not an
	// error.
	Unblock(ctx context.Context, blockerID, blockedID string) error

	// IsBlocked reports whether blocker has blocked blocked.
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)

	// RelatedTo returns the set of user IDs with a block relationship
	// to userID in either direction. Users in this set must not see
	// each other in proximity results.
	RelatedTo(ctx context.Context, userID string) (map[string]struct{}, error)

	// List returns the users blocked by blockerID.
	List(ctx context.Context, blockerID string) ([]Block, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Block records a block. ON CONFLICT makes repeats idempotent.
func (r *PostgresRepository) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return ErrSelfBlock
	}
	query := `
		INSERT INTO blocked_users (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// Unblock removes a block.
func (r *PostgresRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	query := `
		DELETE FROM blocked_users
		WHERE blocker_id = $1 AND blocked_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, blockerID, blockedID); err != nil {
		return fmt.Errorf("failed to unblock user: %w", err)
	}
	return nil
}

// IsBlocked reports whether blocker has blocked blocked.
func (r *PostgresRepository) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blocked_users
			WHERE blocker_id = $1 AND blocked_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, blockerID, blockedID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return exists, nil
}

// RelatedTo returns users blocked by or blocking userID.
func (r *PostgresRepository) RelatedTo(ctx context.Context, userID string) (map[string]struct{}, error) {
	query := `
		SELECT blocked_id FROM blocked_users WHERE blocker_id = $1
		UNION
		SELECT blocker_id FROM blocked_users WHERE blocked_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list block relations: %w", err)
	}
	defer rows.Close()

	related := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan block relation: %w", err)
		}
		related[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate block relations: %w", err)
	}
	return related, nil
}

// List returns the users blocked by blockerID.
func (r *PostgresRepository) List(ctx context.Context, blockerID string) ([]Block, error) {
	query := `
		SELECT blocker_id, blocked_id, created_at
		FROM blocked_users
		WHERE blocker_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, blockerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.BlockerID, &b.BlockedID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocks: %w", err)
	}
	return blocks, nil
}

// InMemoryRepository implements Repository with an in-memory map.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu     sync.RWMutex
	blocks map[string]map[string]Block // blockerID -> blockedID -> block
}

// NewInMemoryRepository creates a new in-memory block repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		blocks: make(map[string]map[string]Block),
	}
}

// Block records a block. Idempotent.
func (r *InMemoryRepository) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return ErrSelfBlock
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.blocks[blockerID] == nil {
		r.blocks[blockerID] = make(map[string]Block)
	}
	if _, ok := r.blocks[blockerID][blockedID]; !ok {
		r.blocks[blockerID][blockedID] = Block{
			BlockerID: blockerID,
			BlockedID: blockedID,
			CreatedAt: time.Now().UTC(),
		}
	}
	return nil
}

// Unblock removes a block.
func (r *InMemoryRepository) Unblock(ctx context.Context, blockerID, blockedID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if blocked, ok := r.blocks[blockerID]; ok {
		delete(blocked, blockedID)
		if len(blocked) == 0 {
			delete(r.blocks, blockerID)
		}
	}
	return nil
}

// IsBlocked reports whether blocker has blocked blocked.
func (r *InMemoryRepository) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.blocks[blockerID][blockedID]
	return ok, nil
}

// RelatedTo returns users blocked by or blocking userID.
func (r *InMemoryRepository) RelatedTo(ctx context.Context, userID string) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	related := make(map[string]struct{})
	for blockedID := range r.blocks[userID] {
		related[blockedID] = struct{}{}
	}
	for blockerID, blocked := range r.blocks {
		if _, ok := blocked[userID]; ok {
			related[blockerID] = struct{}{}
		}
	}
	return related, nil
}

// List returns the users blocked by blockerID.
func (r *InMemoryRepository) List(ctx context.Context, blockerID string) ([]Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var blocks []Block
	for _, b := range r.blocks[blockerID] {
		blocks = append(blocks, b)
	}
	return blocks, nil
}
