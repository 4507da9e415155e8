package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// queryTimeout bounds individual audit statements. The Repository
// interface carries no context because entries are written from helper
// functions that must not outlive the request.
const queryTimeout = 5 * time.Second

// PostgresRepository implements Repository and Anonymizer backed by
// the audit_logs table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// LogAccess records an access event, chaining it to the most recent
// entry. The read of the previous hash and the insert run in one
// transaction so concurrent writers serialize on the chain head.
func (r *PostgresRepository) LogAccess(entry LogEntry) (*AuditLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	var prevHash sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT entry_hash FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`).Scan(&prevHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read audit chain head: %w", err)
	}

	log := &AuditLog{
		ID:           uuid.New().String(),
		UserID:       entry.UserID,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Action:       entry.Action,
		Outcome:      outcome,
		CreatedAt:    time.Now().UTC(),
		RequestID:    entry.RequestID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		PreviousHash: prevHash.String,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, user_id, entity_type, entity_id, action, outcome,
			created_at, request_id, ip_address, user_agent,
			previous_hash, entry_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		log.ID, log.UserID, log.EntityType, log.EntityID, log.Action, log.Outcome,
		log.CreatedAt, nullable(log.RequestID), nullable(log.IPAddress), nullable(log.UserAgent),
		nullable(log.PreviousHash), ChainHash(log),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit log: %w", err)
	}
	return log, nil
}

// QueryByEntity retrieves audit logs for a specific entity, newest first.
func (r *PostgresRepository) QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error) {
	return r.query(`
		SELECT id, user_id, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent,
		       ip_anonymized_at, previous_hash
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
	`, limit, entityType, entityID)
}

// QueryByUser retrieves audit logs for a specific user, newest first.
func (r *PostgresRepository) QueryByUser(userID string, limit int) ([]*AuditLog, error) {
	return r.query(`
		SELECT id, user_id, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent,
		       ip_anonymized_at, previous_hash
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, limit, userID)
}

func (r *PostgresRepository) query(baseQuery string, limit int, args ...any) ([]*AuditLog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	query := baseQuery
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", baseQuery, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var results []*AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return results, nil
}

// GetLastHash returns the stored hash of the chain head.
func (r *PostgresRepository) GetLastHash() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var hash string
	err := r.db.QueryRowContext(ctx, `
		SELECT entry_hash FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read audit chain head: %w", err)
	}
	return hash, nil
}

// VerifyHashChain walks the full log oldest-first, recomputing each
// entry hash and checking the links. Intended for offline integrity
// checks, not the request path.
func (r *PostgresRepository) VerifyHashChain() (bool, error) {
	// Full-table walk; give it more room than a request-path query.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent,
		       ip_anonymized_at, previous_hash
		FROM audit_logs
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return false, fmt.Errorf("failed to query audit chain: %w", err)
	}
	defer rows.Close()

	prev := ""
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return false, err
		}
		if log.PreviousHash != prev {
			return false, nil
		}
		prev = ChainHash(log)
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate audit chain: %w", err)
	}
	return true, nil
}

// AnonymizeIPs coarsens stored IPs for entries older than cutoff, one
// batch per call. The entry hash excludes the IP, so the chain stays
// verifiable afterward.
func (r *PostgresRepository) AnonymizeIPs(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ip_address FROM audit_logs
		WHERE created_at < $1
		  AND ip_address IS NOT NULL
		  AND ip_anonymized_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query logs for anonymization: %w", err)
	}
	defer rows.Close()

	type target struct {
		id string
		ip string
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.ip); err != nil {
			return 0, fmt.Errorf("failed to scan anonymization target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate anonymization targets: %w", err)
	}

	updated := 0
	for _, t := range targets {
		_, err := r.db.ExecContext(ctx, `
			UPDATE audit_logs
			SET ip_address = $2, ip_anonymized_at = NOW()
			WHERE id = $1 AND ip_anonymized_at IS NULL
		`, t.id, AnonymizeIP(t.ip))
		if err != nil {
			return updated, fmt.Errorf("failed to anonymize audit log %s: %w", t.id, err)
		}
		updated++
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*AuditLog, error) {
	var (
		log            AuditLog
		requestID      sql.NullString
		ipAddress      sql.NullString
		userAgent      sql.NullString
		previousHash   sql.NullString
		ipAnonymizedAt sql.NullTime
	)
	err := row.Scan(
		&log.ID, &log.UserID, &log.EntityType, &log.EntityID, &log.Action, &log.Outcome,
		&log.CreatedAt, &requestID, &ipAddress, &userAgent,
		&ipAnonymizedAt, &previousHash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	log.RequestID = requestID.String
	log.IPAddress = ipAddress.String
	log.UserAgent = userAgent.String
	log.PreviousHash = previousHash.String
	if ipAnonymizedAt.Valid {
		t := ipAnonymizedAt.Time
		log.IPAnonymizedAt = &t
	}
	return &log, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
