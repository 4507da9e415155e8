package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrProfileNotFound is returned when a user has no stored profile.
// Callers serving reads should substitute Default rather than 404.
var ErrProfileNotFound = errors.New("profile not found")

// Repository defines storage operations for profiles.
type Repository interface {
	// Get returns the stored profile for userID, or ErrProfileNotFound.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Upsert inserts or replaces the profile in a single statement.
	Upsert(ctx context.Context, p *Profile) error

	// Exists reports whether a profile row exists for userID.
	Exists(ctx context.Context, userID string) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the stored profile for userID.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `
		SELECT user_id, username, name, COALESCE(avatar, ''),
		       COALESCE(birthday, $2), COALESCE(hometown, ''),
		       COALESCE(description, ''), COALESCE(interests, 'null'::jsonb)
		FROM profiles
		WHERE user_id = $1
	`

	var p Profile
	var interestsJSON []byte
	err := r.db.QueryRowContext(ctx, query, userID, DefaultBirthday).Scan(
		&p.Core.UserID, &p.Core.Username, &p.Core.Name, &p.Core.Avatar,
		&p.Extended.Birthday, &p.Extended.Hometown,
		&p.Extended.Description, &interestsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile for user %s: %w", userID, err)
	}

	if err := json.Unmarshal(interestsJSON, &p.Extended.Interests); err != nil {
		return nil, fmt.Errorf("failed to decode interests for user %s: %w", userID, err)
	}
	return &p, nil
}

// Upsert inserts or replaces the profile keyed by user_id.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Profile) error {
	interestsJSON, err := json.Marshal(p.Extended.Interests)
	if err != nil {
		return fmt.Errorf("failed to encode interests: %w", err)
	}

	query := `
		INSERT INTO profiles (user_id, username, name, avatar, birthday, hometown, description, interests)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		ON CONFLICT (user_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			birthday = EXCLUDED.birthday,
			hometown = EXCLUDED.hometown,
			description = EXCLUDED.description,
			interests = EXCLUDED.interests
	`
	_, err = r.db.ExecContext(ctx, query,
		p.Core.UserID, p.Core.Username, p.Core.Name, p.Core.Avatar,
		p.Extended.Birthday, p.Extended.Hometown, p.Extended.Description,
		interestsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile for user %s: %w", p.Core.UserID, err)
	}
	return nil
}

// Exists reports whether a profile row exists for userID.
func (r *PostgresRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = $1)`, userID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check profile existence for user %s: %w", userID, err)
	}
	return exists, nil
}

// InMemoryRepository implements Repository with an in-memory map.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewInMemoryRepository creates a new in-memory profile repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		profiles: make(map[string]*Profile),
	}
}

// Get returns the stored profile for userID.
func (r *InMemoryRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	// Copy to prevent external mutation.
	copied := *p
	copied.Extended.Interests = append([]string(nil), p.Extended.Interests...)
	return &copied, nil
}

// Upsert inserts or replaces the profile keyed by user ID.
func (r *InMemoryRepository) Upsert(ctx context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *p
	copied.Extended.Interests = append([]string(nil), p.Extended.Interests...)
	r.profiles[p.Core.UserID] = &copied
	return nil
}

// Exists reports whether a profile exists for userID.
func (r *InMemoryRepository) Exists(ctx context.Context, userID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.profiles[userID]
	return ok, nil
}
