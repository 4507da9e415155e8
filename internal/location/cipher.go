// Package location implements encrypted location storage and
// proximity search for the Kindred API. Coordinates are never
// persisted or logged in plaintext; every stored fix is an
// AES-GCM token produced by Cipher.
package location

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters. These are fixed: changing any of them
// makes every previously stored token undecryptable.
const (
	kdfIterations = 100000
	kdfSalt       = "static_salt"
	keyLength     = 32
)

// Token layout constants for nonce ‖ tag ‖ ciphertext.
const (
	nonceSize = 12
	tagSize   = 16
)

// Cipher errors.
var (
	// ErrDecryptFailed is returned for any undecryptable token:
	// malformed encoding, failed tag verification, or a payload that
	// does not parse as a coordinate pair. Callers must treat it as a
	// server-side failure, never as an empty location.
	ErrDecryptFailed = errors.New("location decryption failed")

	// ErrInvalidCoordinate is returned when latitude or longitude is
	// outside its valid range.
	ErrInvalidCoordinate = errors.New("coordinate out of range")

	// ErrMissingSecret is returned when constructing a key provider
	// from an empty secret.
	ErrMissingSecret = errors.New("encryption secret is required")
)

// coordinatePayload is the serialized plaintext inside every token.
// The field names are part of the stored format.
type coordinatePayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// KeyProvider supplies the symmetric key used by Cipher. Injecting the
// key through an interface keeps the cipher testable and leaves room
// for rotation strategies later.
type KeyProvider interface {
	// EncryptionKey returns the 32-byte AES key.
	EncryptionKey() []byte
}

// derivedKey is a KeyProvider holding a key derived once from a secret.
type derivedKey struct {
	key []byte
}

func (d *derivedKey) EncryptionKey() []byte { return d.key }

// DeriveKey derives an AES-256 key from the configured secret using
// PBKDF2-HMAC-SHA256. Derivation happens once per process; the result
// is held by the returned provider.
func DeriveKey(secret string) (KeyProvider, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	key := pbkdf2.Key([]byte(secret), []byte(kdfSalt), kdfIterations, keyLength, sha256.New)
	return &derivedKey{key: key}, nil
}

// StaticKey returns a KeyProvider wrapping a raw 32-byte key. Intended
// for tests.
func StaticKey(key []byte) KeyProvider {
	return &derivedKey{key: key}
}

// Cipher performs authenticated encryption of coordinate pairs.
// Tokens are base64(nonce ‖ tag ‖ ciphertext) with a fresh random
// nonce per call, so encrypting the same coordinates twice yields
// unrelated tokens.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from the given key provider.
func NewCipher(kp KeyProvider) (*Cipher, error) {
	block, err := aes.NewCipher(kp.EncryptionKey())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// ValidateCoordinates checks that lat is in [-90, 90] and lon is in
// [-180, 180]. Returns ErrInvalidCoordinate otherwise.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, lon)
	}
	return nil
}

// Encrypt serializes and encrypts a coordinate pair, returning an
// opaque text-safe token.
func (c *Cipher) Encrypt(lat, lon float64) (string, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return "", err
	}

	payload, err := json.Marshal(coordinatePayload{Lat: lat, Lon: lon})
	if err != nil {
		return "", fmt.Errorf("failed to serialize coordinates: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the stored layout is
	// nonce ‖ tag ‖ ciphertext, so split and reorder.
	sealed := c.aead.Seal(nil, nonce, payload, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	token := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	token = append(token, nonce...)
	token = append(token, tag...)
	token = append(token, ciphertext...)

	return base64.StdEncoding.EncodeToString(token), nil
}

// Decrypt parses and decrypts a token produced by Encrypt. It fails
// closed: any tampering or malformed input yields ErrDecryptFailed and
// never a fabricated coordinate.
func (c *Cipher) Decrypt(token string) (lat, lon float64, err error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, 0, ErrDecryptFailed
	}
	if len(raw) < nonceSize+tagSize {
		return 0, 0, ErrDecryptFailed
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ciphertext := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	payload, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return 0, 0, ErrDecryptFailed
	}

	var coords coordinatePayload
	if err := json.Unmarshal(payload, &coords); err != nil {
		return 0, 0, ErrDecryptFailed
	}
	return coords.Lat, coords.Lon, nil
}
