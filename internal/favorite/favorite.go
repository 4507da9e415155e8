// Package favorite provides models, repository and service for user
// favorites.
package favorite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-social/kindred/internal/notify"
)

// Service errors.
var (
	ErrFavoriteNotFound = errors.New("favorite not found")
	ErrAlreadyFavorited = errors.New("user is already favorited")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotOwner         = errors.New("not authorized to remove this favorite")
)

// Favorite marks one user as a favorite of another.
type Favorite struct {
	ID             string    `json:"favorite_id"`
	UserID         string    `json:"user_id"`
	FavoriteUserID string    `json:"favorite_user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Repository defines storage operations for favorites.
type Repository interface {
	// Create stores a new favorite.
	Create(ctx context.Context, f *Favorite) error

	// Get returns the favorite with the given ID, or ErrFavoriteNotFound.
	Get(ctx context.Context, favoriteID string) (*Favorite, error)

	// Delete removes a favorite row.
	Delete(ctx context.Context, favoriteID string) error

	// List returns all favorites created by userID.
	List(ctx context.Context, userID string) ([]Favorite, error)

	// Exists reports whether userID has favorited favoriteUserID.
	Exists(ctx context.Context, userID, favoriteUserID string) (bool, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores a new favorite.
func (r *PostgresRepository) Create(ctx context.Context, f *Favorite) error {
	query := `
		INSERT INTO user_favorites (id, user_id, favorite_user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, f.ID, f.UserID, f.FavoriteUserID, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create favorite: %w", err)
	}
	return nil
}

// Get returns the favorite with the given ID.
func (r *PostgresRepository) Get(ctx context.Context, favoriteID string) (*Favorite, error) {
	query := `
		SELECT id, user_id, favorite_user_id, created_at
		FROM user_favorites
		WHERE id = $1
	`
	var f Favorite
	err := r.db.QueryRowContext(ctx, query, favoriteID).Scan(
		&f.ID, &f.UserID, &f.FavoriteUserID, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrFavoriteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch favorite %s: %w", favoriteID, err)
	}
	return &f, nil
}

// Delete removes a favorite row.
func (r *PostgresRepository) Delete(ctx context.Context, favoriteID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE id = $1`, favoriteID)
	if err != nil {
		return fmt.Errorf("failed to delete favorite %s: %w", favoriteID, err)
	}
	return nil
}

// List returns all favorites created by userID.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]Favorite, error) {
	query := `
		SELECT id, user_id, favorite_user_id, created_at
		FROM user_favorites
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.FavoriteUserID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorites = append(favorites, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}
	return favorites, nil
}

// Exists reports whether userID has favorited favoriteUserID.
func (r *PostgresRepository) Exists(ctx context.Context, userID, favoriteUserID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_favorites
			WHERE user_id = $1 AND favorite_user_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, favoriteUserID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check favorite: %w", err)
	}
	return exists, nil
}

// InMemoryRepository implements Repository with an in-memory map.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu        sync.RWMutex
	favorites map[string]*Favorite
}

// NewInMemoryRepository creates a new in-memory favorite repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		favorites: make(map[string]*Favorite),
	}
}

// Create stores a new favorite.
func (r *InMemoryRepository) Create(ctx context.Context, f *Favorite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *f
	r.favorites[f.ID] = &copied
	return nil
}

// Get returns the favorite with the given ID.
func (r *InMemoryRepository) Get(ctx context.Context, favoriteID string) (*Favorite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.favorites[favoriteID]
	if !ok {
		return nil, ErrFavoriteNotFound
	}
	copied := *f
	return &copied, nil
}

// Delete removes a favorite.
func (r *InMemoryRepository) Delete(ctx context.Context, favoriteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.favorites, favoriteID)
	return nil
}

// List returns all favorites created by userID.
func (r *InMemoryRepository) List(ctx context.Context, userID string) ([]Favorite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var favorites []Favorite
	for _, f := range r.favorites {
		if f.UserID == userID {
			favorites = append(favorites, *f)
		}
	}
	return favorites, nil
}

// Exists reports whether userID has favorited favoriteUserID.
func (r *InMemoryRepository) Exists(ctx context.Context, userID, favoriteUserID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.favorites {
		if f.UserID == userID && f.FavoriteUserID == favoriteUserID {
			return true, nil
		}
	}
	return false, nil
}

// ProfileChecker reports whether a user has a profile. Satisfied by
// profile.Repository.
type ProfileChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Service enforces favorite rules on top of a Repository: the target
// must exist, no duplicates, only the owner removes.
type Service struct {
	repo     Repository
	profiles ProfileChecker
	hub      *notify.Hub // optional; nil disables notifications
	nowFunc  func() time.Time
	newID    func() string
}

// NewService creates a favorite service. hub may be nil.
func NewService(repo Repository, profiles ProfileChecker, hub *notify.Hub) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		hub:      hub,
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Add favorites favoriteUserID for userID.
func (s *Service) Add(ctx context.Context, userID, favoriteUserID string) (*Favorite, error) {
	exists, err := s.profiles.Exists(ctx, favoriteUserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	favorited, err := s.repo.Exists(ctx, userID, favoriteUserID)
	if err != nil {
		return nil, err
	}
	if favorited {
		return nil, ErrAlreadyFavorited
	}

	f := &Favorite{
		ID:             s.newID(),
		UserID:         userID,
		FavoriteUserID: favoriteUserID,
		CreatedAt:      s.nowFunc().UTC(),
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Notify(favoriteUserID, &notify.Event{
			Type:       notify.EventFavorited,
			FromUserID: userID,
			CreatedAt:  f.CreatedAt,
		})
	}
	return f, nil
}

// Remove deletes a favorite. Only its owner may remove it.
func (s *Service) Remove(ctx context.Context, favoriteID, userID string) error {
	f, err := s.repo.Get(ctx, favoriteID)
	if err != nil {
		return err
	}
	if f.UserID != userID {
		return ErrNotOwner
	}
	return s.repo.Delete(ctx, favoriteID)
}

// List returns all favorites created by userID.
func (s *Service) List(ctx context.Context, userID string) ([]Favorite, error) {
	return s.repo.List(ctx, userID)
}

// IsFavorite reports whether userID has favorited favoriteUserID.
func (s *Service) IsFavorite(ctx context.Context, userID, favoriteUserID string) (bool, error) {
	return s.repo.Exists(ctx, userID, favoriteUserID)
}
