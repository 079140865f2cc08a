package store

import (
	"context"
	"errors"
	"time"
)

// Standard error values used across storage implementations.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the resource already exists or the operation would violate invariants.
	ErrConflict = errors.New("conflict")
)

// TokenRecordStore persists the account provider's view of each recovery
// token it has issued, driving the status enumeration of the token-status
// callback.
type TokenRecordStore interface {
	// CreateTokenRecord stores a newly issued token as provisional.
	CreateTokenRecord(ctx context.Context, rec TokenRecord) error
	// GetTokenRecord retrieves a record by its hex token id.
	GetTokenRecord(ctx context.Context, id string) (TokenRecord, error)
	// GetByHash retrieves a record by the SHA-256 digest of its token's
	// decoded wire bytes, as needed when a countersigned submission arrives carrying
	// only the inner token's hash.
	GetByHash(ctx context.Context, hash string) (TokenRecord, error)
	// UpdateStatus transitions a record's status. Unknown ids are reported
	// via ErrNotFound so the caller can ignore callbacks for ids it never
	// issued without that looking like a storage failure.
	UpdateStatus(ctx context.Context, id string, status string, at time.Time) error
	// DeleteTokenRecord removes a record entirely (used on save-failure and
	// deleted callbacks).
	DeleteTokenRecord(ctx context.Context, id string) error
}

// SigningKeyStore manages an account provider's P-256 token-signing key
// rotation.
type SigningKeyStore interface {
	// GetCurrentSigningKey returns the key new tokens should be signed with:
	// the most recently activated key that is not yet retired.
	GetCurrentSigningKey(ctx context.Context) (SigningKey, error)
	// ListVerificationKeys returns every key still valid for signature
	// verification, including retired-but-not-expired keys in the rotation
	// overlap window.
	ListVerificationKeys(ctx context.Context) ([]SigningKey, error)
	// AddSigningKey adds a newly generated key to the rotation.
	AddSigningKey(ctx context.Context, key SigningKey) error
	// RetireSigningKey marks a key retired as of at; it remains valid for
	// verification until its ExpiresAt.
	RetireSigningKey(ctx context.Context, keyID string, at time.Time) error
}

// IdempotencyStore caches the response of an admin mutation (token issue or
// renewal) under a client-supplied key, for a limited period, so a retried
// request with the same key replays the original response rather than
// minting a second token.
type IdempotencyStore interface {
	Remember(ctx context.Context, key string, response StoredResponse) error
	Recall(ctx context.Context, key string) (StoredResponse, bool)
}

// Store aggregates all persistence capabilities required by the service.
type Store interface {
	TokenRecordStore
	SigningKeyStore
	IdempotencyStore
}

// StoredResponse captures the HTTP response data persisted for idempotent
// replays.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	ExpiresAt  time.Time
}
