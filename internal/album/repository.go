package album

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Repository defines storage operations for albums and access requests.
type Repository interface {
	// Create stores a new album.
	Create(ctx context.Context, a *Album) error

	// Update replaces an existing album's mutable fields.
	Update(ctx context.Context, a *Album) error

	// Get returns the album with the given ID, or ErrAlbumNotFound.
	// Permission checks are the caller's responsibility.
	Get(ctx context.Context, albumID string) (*Album, error)

	// Delete removes an album.
	Delete(ctx context.Context, albumID string) error

	// ListVisible returns albums userID may view: public albums, own
	// albums, and restricted albums listing them.
	ListVisible(ctx context.Context, userID string) ([]Album, error)

	// ListOwned returns albums owned by userID.
	ListOwned(ctx context.Context, userID string) ([]Album, error)

	// CreateAccessRequest stores a pending access request.
	CreateAccessRequest(ctx context.Context, req *AccessRequest) error

	// GetAccessRequest returns a pending request by ID.
	GetAccessRequest(ctx context.Context, requestID string) (*AccessRequest, error)

	// HasAccessRequest reports whether requesterID already has a
	// pending request for albumID.
	HasAccessRequest(ctx context.Context, albumID, requesterID string) (bool, error)

	// DeleteAccessRequest removes a request once decided.
	DeleteAccessRequest(ctx context.Context, requestID string) error

	// ListAccessRequests returns pending requests for albumID.
	ListAccessRequests(ctx context.Context, albumID string) ([]AccessRequest, error)
}

// PostgresRepository implements Repository using PostgreSQL. Images
// are stored as text[], the allowed list as text[] as well so the
// restricted-visibility query can use ANY.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create stores a new album.
func (r *PostgresRepository) Create(ctx context.Context, a *Album) error {
	query := `
		INSERT INTO albums (id, user_id, title, description, images, permission, allowed_users, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.Title, a.Description,
		pq.Array(a.Images), string(a.Permission), pq.Array(a.AllowedUsers), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create album: %w", err)
	}
	return nil
}

// Update replaces an album's mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, a *Album) error {
	query := `
		UPDATE albums
		SET title = $2, description = $3, images = $4, permission = $5,
		    allowed_users = $6, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		a.ID, a.Title, a.Description,
		pq.Array(a.Images), string(a.Permission), pq.Array(a.AllowedUsers))
	if err != nil {
		return fmt.Errorf("failed to update album %s: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlbumNotFound
	}
	return nil
}

// Get returns the album with the given ID.
func (r *PostgresRepository) Get(ctx context.Context, albumID string) (*Album, error) {
	query := `
		SELECT id, user_id, title, COALESCE(description, ''), images,
		       permission, allowed_users, created_at, updated_at
		FROM albums
		WHERE id = $1
	`
	a, err := scanAlbum(r.db.QueryRowContext(ctx, query, albumID))
	if err == sql.ErrNoRows {
		return nil, ErrAlbumNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch album %s: %w", albumID, err)
	}
	return a, nil
}

// Delete removes an album.
func (r *PostgresRepository) Delete(ctx context.Context, albumID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM albums WHERE id = $1`, albumID); err != nil {
		return fmt.Errorf("failed to delete album %s: %w", albumID, err)
	}
	return nil
}

// ListVisible returns albums userID may view.
func (r *PostgresRepository) ListVisible(ctx context.Context, userID string) ([]Album, error) {
	query := `
		SELECT id, user_id, title, COALESCE(description, ''), images,
		       permission, allowed_users, created_at, updated_at
		FROM albums
		WHERE permission = 'public'
		   OR user_id = $1
		   OR (permission = 'restricted' AND $1 = ANY(allowed_users))
		ORDER BY created_at
	`
	return r.listAlbums(ctx, query, userID)
}

// ListOwned returns albums owned by userID.
func (r *PostgresRepository) ListOwned(ctx context.Context, userID string) ([]Album, error) {
	query := `
		SELECT id, user_id, title, COALESCE(description, ''), images,
		       permission, allowed_users, created_at, updated_at
		FROM albums
		WHERE user_id = $1
		ORDER BY created_at
	`
	return r.listAlbums(ctx, query, userID)
}

func (r *PostgresRepository) listAlbums(ctx context.Context, query, userID string) ([]Album, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		albums = append(albums, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate albums: %w", err)
	}
	return albums, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlbum(row rowScanner) (*Album, error) {
	var a Album
	var permission string
	err := row.Scan(
		&a.ID, &a.UserID, &a.Title, &a.Description,
		pq.Array(&a.Images), &permission, pq.Array(&a.AllowedUsers),
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Permission = Permission(permission)
	return &a, nil
}

// CreateAccessRequest stores a pending access request.
func (r *PostgresRepository) CreateAccessRequest(ctx context.Context, req *AccessRequest) error {
	query := `
		INSERT INTO album_access_requests (id, album_id, requester_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, req.ID, req.AlbumID, req.RequesterID, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create access request: %w", err)
	}
	return nil
}

// GetAccessRequest returns a pending request by ID.
func (r *PostgresRepository) GetAccessRequest(ctx context.Context, requestID string) (*AccessRequest, error) {
	query := `
		SELECT id, album_id, requester_id, created_at
		FROM album_access_requests
		WHERE id = $1
	`
	var req AccessRequest
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(
		&req.ID, &req.AlbumID, &req.RequesterID, &req.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccessRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch access request %s: %w", requestID, err)
	}
	return &req, nil
}

// HasAccessRequest reports whether a pending request exists.
func (r *PostgresRepository) HasAccessRequest(ctx context.Context, albumID, requesterID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM album_access_requests
			WHERE album_id = $1 AND requester_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, albumID, requesterID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check access request: %w", err)
	}
	return exists, nil
}

// DeleteAccessRequest removes a request once decided.
func (r *PostgresRepository) DeleteAccessRequest(ctx context.Context, requestID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM album_access_requests WHERE id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("failed to delete access request %s: %w", requestID, err)
	}
	return nil
}

// ListAccessRequests returns pending requests for albumID.
func (r *PostgresRepository) ListAccessRequests(ctx context.Context, albumID string) ([]AccessRequest, error) {
	query := `
		SELECT id, album_id, requester_id, created_at
		FROM album_access_requests
		WHERE album_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer rows.Close()

	var requests []AccessRequest
	for rows.Next() {
		var req AccessRequest
		if err := rows.Scan(&req.ID, &req.AlbumID, &req.RequesterID, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access requests: %w", err)
	}
	return requests, nil
}

// InMemoryRepository implements Repository with in-memory maps.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu       sync.RWMutex
	albums   map[string]*Album
	requests map[string]*AccessRequest
}

// NewInMemoryRepository creates a new in-memory album repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		albums:   make(map[string]*Album),
		requests: make(map[string]*AccessRequest),
	}
}

func copyAlbum(a *Album) *Album {
	copied := *a
	copied.Images = append([]string(nil), a.Images...)
	copied.AllowedUsers = append([]string(nil), a.AllowedUsers...)
	if a.UpdatedAt != nil {
		ts := *a.UpdatedAt
		copied.UpdatedAt = &ts
	}
	return &copied
}

// Create stores a new album.
func (r *InMemoryRepository) Create(ctx context.Context, a *Album) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.albums[a.ID] = copyAlbum(a)
	return nil
}

// Update replaces an album's mutable fields.
func (r *InMemoryRepository) Update(ctx context.Context, a *Album) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.albums[a.ID]
	if !ok {
		return ErrAlbumNotFound
	}
	updated := copyAlbum(a)
	updated.UserID = existing.UserID
	updated.CreatedAt = existing.CreatedAt
	now := time.Now().UTC()
	updated.UpdatedAt = &now
	r.albums[a.ID] = updated
	return nil
}

// Get returns the album with the given ID.
func (r *InMemoryRepository) Get(ctx context.Context, albumID string) (*Album, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.albums[albumID]
	if !ok {
		return nil, ErrAlbumNotFound
	}
	return copyAlbum(a), nil
}

// Delete removes an album.
func (r *InMemoryRepository) Delete(ctx context.Context, albumID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.albums, albumID)
	return nil
}

// ListVisible returns albums userID may view.
func (r *InMemoryRepository) ListVisible(ctx context.Context, userID string) ([]Album, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var albums []Album
	for _, a := range r.albums {
		if a.CanView(userID) {
			albums = append(albums, *copyAlbum(a))
		}
	}
	return albums, nil
}

// ListOwned returns albums owned by userID.
func (r *InMemoryRepository) ListOwned(ctx context.Context, userID string) ([]Album, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var albums []Album
	for _, a := range r.albums {
		if a.UserID == userID {
			albums = append(albums, *copyAlbum(a))
		}
	}
	return albums, nil
}

// CreateAccessRequest stores a pending access request.
func (r *InMemoryRepository) CreateAccessRequest(ctx context.Context, req *AccessRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *req
	r.requests[req.ID] = &copied
	return nil
}

// GetAccessRequest returns a pending request by ID.
func (r *InMemoryRepository) GetAccessRequest(ctx context.Context, requestID string) (*AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[requestID]
	if !ok {
		return nil, ErrAccessRequestNotFound
	}
	copied := *req
	return &copied, nil
}

// HasAccessRequest reports whether a pending request exists.
func (r *InMemoryRepository) HasAccessRequest(ctx context.Context, albumID, requesterID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.requests {
		if req.AlbumID == albumID && req.RequesterID == requesterID {
			return true, nil
		}
	}
	return false, nil
}

// DeleteAccessRequest removes a request once decided.
func (r *InMemoryRepository) DeleteAccessRequest(ctx context.Context, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.requests, requestID)
	return nil
}

// ListAccessRequests returns pending requests for albumID.
func (r *InMemoryRepository) ListAccessRequests(ctx context.Context, albumID string) ([]AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var requests []AccessRequest
	for _, req := range r.requests {
		if req.AlbumID == albumID {
			requests = append(requests, *req)
		}
	}
	return requests, nil
}
