package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	// LogAccess records an access event, chaining it to the previous
	// entry. Returns the created audit log entry.
	LogAccess(entry LogEntry) (*AuditLog, error)

	// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error)

	// QueryByUser retrieves audit logs for a specific user, sorted by time (newest first).
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByUser(userID string, limit int) ([]*AuditLog, error)

	// GetLastHash returns the chain hash of the most recent entry, or
	// the empty string for an empty log.
	GetLastHash() (string, error)

	// VerifyHashChain walks the log oldest-first and reports whether
	// every entry's PreviousHash matches the recomputed hash of its
	// predecessor.
	VerifyHashChain() (bool, error)
}

// Anonymizer is implemented by repositories that support the IP
// retention job.
type Anonymizer interface {
	// AnonymizeIPs coarsens stored IP addresses for entries created
	// before cutoff, up to batchSize entries (0 = no batch limit).
	// Returns the number of entries updated.
	AnonymizeIPs(ctx context.Context, cutoff time.Time, batchSize int) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs map[string]*AuditLog
	// Insertion order, oldest first; also the chain order.
	order    []string
	lastHash string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		logs:  make(map[string]*AuditLog),
		order: make([]string, 0),
	}
}

// LogAccess records an access event and links it into the hash chain.
func (r *InMemoryRepository) LogAccess(entry LogEntry) (*AuditLog, error) {
	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	r.mu.Lock()
	defer r.mu.Unlock()

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
		PreviousHash: r.lastHash,
	}

	r.logs[log.ID] = log
	r.order = append(r.order, log.ID)
	r.lastHash = ChainHash(log)

	logCopy := *log
	return &logCopy, nil
}

// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
func (r *InMemoryRepository) QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]
		if log.EntityType == entityType && log.EntityID == entityID {
			logCopy := *log
			results = append(results, &logCopy)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// QueryByUser retrieves audit logs for a specific user, sorted by time (newest first).
func (r *InMemoryRepository) QueryByUser(userID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]
		if log.UserID == userID {
			logCopy := *log
			results = append(results, &logCopy)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// GetLastHash returns the chain hash of the most recent entry.
func (r *InMemoryRepository) GetLastHash() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHash, nil
}

// VerifyHashChain recomputes the chain oldest-first and reports
// whether any entry has been altered.
func (r *InMemoryRepository) VerifyHashChain() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prev := ""
	for _, id := range r.order {
		log := r.logs[id]
		if log.PreviousHash != prev {
			return false, nil
		}
		prev = ChainHash(log)
	}
	return true, nil
}

// AnonymizeIPs coarsens stored IPs for entries older than cutoff.
func (r *InMemoryRepository) AnonymizeIPs(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	updated := 0
	for _, id := range r.order {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		log := r.logs[id]
		if log.IPAnonymizedAt != nil || log.IPAddress == "" || !log.CreatedAt.Before(cutoff) {
			continue
		}
		log.IPAddress = AnonymizeIP(log.IPAddress)
		anonymizedAt := now
		log.IPAnonymizedAt = &anonymizedAt
		updated++
		if batchSize > 0 && updated >= batchSize {
			break
		}
	}
	return updated, nil
}
