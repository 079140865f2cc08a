// Package store contains PostgreSQL schema migrations for the recovery
// service. These migrations create and maintain the database schema
// required for all storage operations.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MigratePostgres applies schema migrations to the PostgreSQL database.
// Each statement is idempotent (uses IF NOT EXISTS) so migration can run on
// every startup.
//
// Tables created:
//   - token_records: the account provider's view of each issued token
//   - signing_keys: the account provider's P-256 token-signing key rotation
//   - idempotency_cache: caches admin-API responses for idempotent replay
//   - replay_guard: digests of countersigned tokens already accepted
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// Token records track the lifecycle of a token this account
		// provider issued, driven by the recovery provider's token-status
		// callbacks.
		`CREATE TABLE IF NOT EXISTS token_records (
            id TEXT PRIMARY KEY,            -- hex-encoded 16-byte token id
            issuer TEXT NOT NULL,           -- AP origin that issued the token
            username TEXT NOT NULL,         -- AP-local account the token belongs to
            hash TEXT NOT NULL,             -- hex SHA-256 of the decoded wire bytes
            status TEXT NOT NULL,           -- provisional | confirmed | invalid
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_token_records_username ON token_records (username)`,
		`CREATE INDEX IF NOT EXISTS idx_token_records_hash ON token_records (hash)`,
		// Signing keys table manages the account provider's token-signing
		// key rotation with overlapping validity windows.
		`CREATE TABLE IF NOT EXISTS signing_keys (
            id TEXT PRIMARY KEY,
            private_key BYTEA NOT NULL,     -- PEM-encoded SEC1 EC private key
            public_key BYTEA NOT NULL,      -- PEM-encoded SubjectPublicKeyInfo
            created_at TIMESTAMPTZ NOT NULL,
            activated_at TIMESTAMPTZ NOT NULL,
            retired_at TIMESTAMPTZ,          -- NULL while still the current signing key
            expires_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_signing_keys_activated_at ON signing_keys (activated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signing_keys_expires_at ON signing_keys (expires_at)`,
		// Idempotency cache stores responses to make admin-API mutations
		// safe to retry.
		`CREATE TABLE IF NOT EXISTS idempotency_cache (
            key TEXT PRIMARY KEY,
            status_code INTEGER NOT NULL,
            body BYTEA NOT NULL,
            headers JSONB NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_idempotency_cache_expires_at ON idempotency_cache (expires_at)`,
		// Replay guard records the digest of every countersigned token
		// accepted so far. The unique index is the actual enforcement
		// point: a concurrent duplicate insert fails here rather than
		// racing a read-then-write in application code.
		`CREATE TABLE IF NOT EXISTS replay_guard (
            digest TEXT PRIMARY KEY,
            seen_at TIMESTAMPTZ NOT NULL
        )`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
