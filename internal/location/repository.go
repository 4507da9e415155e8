package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kindred-social/kindred/internal/stats"
	"github.com/kindred-social/kindred/internal/tracing"
)

// Repository errors.
var (
	// ErrLocationNotFound is returned when a user has no location fix
	// within the requested recency window.
	ErrLocationNotFound = errors.New("location not found or stale")
)

// Repository defines storage operations for encrypted location records.
// Implementations must provide atomic upsert semantics: exactly one
// record per user, no read-then-write races.
type Repository interface {
	// Upsert atomically inserts or replaces the record for userID,
	// stamping the current time.
	Upsert(ctx context.Context, userID, encryptedData string, visibility Visibility) error

	// GetSelf returns the user's own record if it is no older than
	// maxAge, regardless of visibility. Returns ErrLocationNotFound
	// otherwise.
	GetSelf(ctx context.Context, userID string, maxAge time.Duration) (*Record, error)

	// ListCandidates returns all non-private records no older than
	// maxAge, excluding excludeUserID when non-empty.
	ListCandidates(ctx context.Context, excludeUserID string, maxAge time.Duration) ([]Record, error)
}

// PostgresRepository implements Repository using PostgreSQL. The
// one-record-per-user invariant relies on the primary key and
// ON CONFLICT upsert, not on application locking.
type PostgresRepository struct {
	db    *sql.DB
	stats *stats.UpsertStats
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithStats enables insert/update counting on upserts.
func (r *PostgresRepository) WithStats(s *stats.UpsertStats) *PostgresRepository {
	r.stats = s
	return r
}

// Upsert atomically inserts or replaces the user's location in a
// single statement. xmax = 0 distinguishes a fresh insert from a
// conflict update.
func (r *PostgresRepository) Upsert(ctx context.Context, userID, encryptedData string, visibility Visibility) (err error) {
	ctx, end := tracing.StartDBSpan(ctx, "user_locations", tracing.DBOperationUpsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO user_locations (user_id, encrypted_data, visibility, timestamp)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET encrypted_data = $2, visibility = $3, timestamp = NOW()
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	if err := r.db.QueryRowContext(ctx, query, userID, encryptedData, string(visibility)).Scan(&inserted); err != nil {
		return fmt.Errorf("failed to upsert location for user %s: %w", userID, err)
	}
	if r.stats != nil {
		if inserted {
			r.stats.RecordInsert()
		} else {
			r.stats.RecordUpdate()
		}
	}
	return nil
}

// GetSelf returns the user's own record within maxAge. Visibility is
// not checked: the own-record path is visibility-exempt.
func (r *PostgresRepository) GetSelf(ctx context.Context, userID string, maxAge time.Duration) (rec *Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "user_locations", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT user_id, encrypted_data, visibility, timestamp
		FROM user_locations
		WHERE user_id = $1 AND timestamp > $2
	`
	cutoff := time.Now().Add(-maxAge)

	var found Record
	var vis string
	scanErr := r.db.QueryRowContext(ctx, query, userID, cutoff).
		Scan(&found.UserID, &found.EncryptedData, &vis, &found.Timestamp)
	if scanErr == sql.ErrNoRows {
		return nil, ErrLocationNotFound
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to fetch location for user %s: %w", userID, scanErr)
	}
	found.Visibility = Visibility(vis)
	return &found, nil
}

// ListCandidates returns all non-private records within maxAge,
// excluding excludeUserID when set.
func (r *PostgresRepository) ListCandidates(ctx context.Context, excludeUserID string, maxAge time.Duration) (records []Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "user_locations", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT user_id, encrypted_data, visibility, timestamp
		FROM user_locations
		WHERE visibility != 'private'
		  AND timestamp > $1
		  AND ($2 = '' OR user_id != $2)
	`
	cutoff := time.Now().Add(-maxAge)

	rows, queryErr := r.db.QueryContext(ctx, query, cutoff, excludeUserID)
	if queryErr != nil {
		return nil, fmt.Errorf("failed to list candidate locations: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		var vis string
		if err := rows.Scan(&rec.UserID, &rec.EncryptedData, &vis, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan candidate location: %w", err)
		}
		rec.Visibility = Visibility(vis)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidate locations: %w", err)
	}
	return records, nil
}

// InMemoryRepository implements Repository with an in-memory map.
// Used for testing and development. Thread-safe.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	nowFunc func() time.Time
}

// NewInMemoryRepository creates a new in-memory location repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock. Intended for tests exercising
// recency windows.
func (r *InMemoryRepository) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFunc = now
}

// SetTimestamp backdates a stored record. Intended for tests.
func (r *InMemoryRepository) SetTimestamp(userID string, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[userID]; ok {
		rec.Timestamp = ts
	}
}

// Upsert inserts or replaces the record for userID.
func (r *InMemoryRepository) Upsert(ctx context.Context, userID, encryptedData string, visibility Visibility) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[userID] = &Record{
		UserID:        userID,
		EncryptedData: encryptedData,
		Visibility:    visibility,
		Timestamp:     r.nowFunc(),
	}
	return nil
}

// GetSelf returns the user's own record within maxAge.
func (r *InMemoryRepository) GetSelf(ctx context.Context, userID string, maxAge time.Duration) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok || r.nowFunc().Sub(rec.Timestamp) > maxAge {
		return nil, ErrLocationNotFound
	}
	// Copy to prevent external mutation.
	copied := *rec
	return &copied, nil
}

// ListCandidates returns non-private records within maxAge, excluding
// excludeUserID when set. Iteration order is not stable; the engine
// orders results by distance.
func (r *InMemoryRepository) ListCandidates(ctx context.Context, excludeUserID string, maxAge time.Duration) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.nowFunc()
	var records []Record
	for _, rec := range r.records {
		if rec.Visibility == VisibilityPrivate {
			continue
		}
		if excludeUserID != "" && rec.UserID == excludeUserID {
			continue
		}
		if now.Sub(rec.Timestamp) > maxAge {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}
