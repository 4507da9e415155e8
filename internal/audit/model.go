// Package audit records access to privacy-sensitive operations --
// location updates, proximity queries, blocks, album access grants --
// for compliance review and incident response.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Outcome values for audit log entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditLog is a single recorded audit event.
type AuditLog struct {
	ID         string
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string
	CreatedAt  time.Time

	// Optional request metadata.
	RequestID string
	IPAddress string
	UserAgent string

	// IPAnonymizedAt is set once the retention job has coarsened the
	// stored IP address.
	IPAnonymizedAt *time.Time

	// PreviousHash chains this entry to the one before it for tamper
	// detection. Empty for the first entry.
	PreviousHash string
}

// LogEntry is the input for creating an audit log entry.
type LogEntry struct {
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string

	RequestID string
	IPAddress string
	UserAgent string
}

// ChainHash computes the SHA-256 hash of an entry for hash chaining.
// The IP address is deliberately excluded so that the retention job
// can anonymize old IPs without breaking chain verification.
func ChainHash(log *AuditLog) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		log.ID,
		log.UserID,
		log.EntityType,
		log.EntityID,
		log.Action,
		log.Outcome,
		log.CreatedAt.UTC().Format(time.RFC3339Nano),
		log.RequestID,
		log.UserAgent,
		log.PreviousHash,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
