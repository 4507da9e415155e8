// Package idempotency stores responses to request-creating POSTs so a
// retried request with the same Idempotency-Key replays the original
// response instead of creating a second friend request, favorite, block
// or album.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// MaxKeyLength caps client-supplied idempotency keys.
const MaxKeyLength = 64

var (
	ErrKeyNotFound = errors.New("idempotency key not found")
	ErrKeyExists   = errors.New("idempotency key already exists")
	ErrInvalidKey  = errors.New("invalid idempotency key")
	ErrKeyTooLong  = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// Record is a cached response bound to a client-supplied key.
type Record struct {
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	ResponseHash       string    `json:"response_hash"`
	ResponseBody       string    `json:"response_body"`
	ResponseStatusCode int       `json:"response_status_code"`
}

// ValidateKey rejects empty keys and keys over MaxKeyLength.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// HashResponse returns the hex SHA-256 of a response body, stored with
// the record so a corrupted cache entry can be detected.
func HashResponse(responseBody string) string {
	sum := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(sum[:])
}

// Repository persists idempotency records.
type Repository interface {
	// Get returns the record for a key, or ErrKeyNotFound.
	Get(key string) (*Record, error)

	// Store saves a new record. Returns ErrKeyExists on duplicates.
	Store(record *Record) error

	// DeleteOlderThan removes records older than the given age and
	// returns how many were removed.
	DeleteOlderThan(age time.Duration) (int64, error)
}
