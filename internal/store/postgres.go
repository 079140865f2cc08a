// Package store contains PostgreSQL implementation of the Store interface.
// Provides persistent storage for token records, signing keys, and
// idempotency records.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// postgres implements Store using PostgreSQL as the backend. Uses
// connection pooling for the token-record, signing-key, and idempotency
// tables.
type postgres struct {
	db *sql.DB
}

// NewPostgres creates a Store backed by PostgreSQL with connection pooling.
// Tests the database connection before returning the store.
//
// Connection pool configuration:
// - Max 25 open connections to prevent overwhelming the database
// - Max 5 idle connections to maintain a warm pool
// - 5-minute lifetime and idle time to prevent stale connections
func NewPostgres(dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &postgres{db: db}, nil
}

// DB returns the underlying *sql.DB connection pool. Used by migration
// functions and the replay guard, which share this pool.
func (p *postgres) DB() *sql.DB {
	return p.db
}

func (p *postgres) CreateTokenRecord(ctx context.Context, rec TokenRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO token_records (id, issuer, username, hash, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := p.db.ExecContext(ctx, q, rec.ID, rec.Issuer, rec.Username, rec.Hash, rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

func (p *postgres) GetTokenRecord(ctx context.Context, id string) (TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT id, issuer, username, hash, status, created_at, updated_at FROM token_records WHERE id = $1`
	var rec TokenRecord
	err := p.db.QueryRowContext(ctx, q, id).Scan(&rec.ID, &rec.Issuer, &rec.Username, &rec.Hash, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return TokenRecord{}, ErrNotFound
		}
		return TokenRecord{}, fmt.Errorf("query token record: %w", err)
	}
	return rec, nil
}

func (p *postgres) GetByHash(ctx context.Context, hash string) (TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT id, issuer, username, hash, status, created_at, updated_at FROM token_records WHERE hash = $1`
	var rec TokenRecord
	err := p.db.QueryRowContext(ctx, q, hash).Scan(&rec.ID, &rec.Issuer, &rec.Username, &rec.Hash, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return TokenRecord{}, ErrNotFound
		}
		return TokenRecord{}, fmt.Errorf("query token record by hash: %w", err)
	}
	return rec, nil
}

func (p *postgres) UpdateStatus(ctx context.Context, id string, status string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `UPDATE token_records SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := p.db.ExecContext(ctx, q, status, at, id)
	if err != nil {
		return fmt.Errorf("update token record status: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) DeleteTokenRecord(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `DELETE FROM token_records WHERE id = $1`
	if _, err := p.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	return nil
}

func (p *postgres) GetCurrentSigningKey(ctx context.Context) (SigningKey, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT id, private_key, public_key, created_at, activated_at, retired_at, expires_at
			  FROM signing_keys
			  WHERE (retired_at IS NULL OR retired_at > $1)
				AND activated_at <= $1
			  ORDER BY activated_at DESC
			  LIMIT 1`

	var key SigningKey
	var retiredAt *time.Time
	row := p.db.QueryRowContext(ctx, q, time.Now().UTC())
	err := row.Scan(&key.ID, &key.PrivateKey, &key.PublicKey, &key.CreatedAt, &key.ActivatedAt, &retiredAt, &key.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return SigningKey{}, ErrNotFound
		}
		return SigningKey{}, fmt.Errorf("get current signing key: %w", err)
	}
	if retiredAt != nil {
		key.RetiredAt = *retiredAt
	}
	return key, nil
}

func (p *postgres) ListVerificationKeys(ctx context.Context) ([]SigningKey, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT id, private_key, public_key, created_at, activated_at, retired_at, expires_at
			  FROM signing_keys
			  WHERE (expires_at IS NULL OR expires_at > $1)
				AND activated_at <= $1
			  ORDER BY activated_at DESC`

	rows, err := p.db.QueryContext(ctx, q, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list verification keys: %w", err)
	}
	defer rows.Close()

	var keys []SigningKey
	for rows.Next() {
		var key SigningKey
		var retiredAt *time.Time
		if err := rows.Scan(&key.ID, &key.PrivateKey, &key.PublicKey, &key.CreatedAt, &key.ActivatedAt, &retiredAt, &key.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan signing key: %w", err)
		}
		if retiredAt != nil {
			key.RetiredAt = *retiredAt
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signing keys: %w", err)
	}
	return keys, nil
}

func (p *postgres) AddSigningKey(ctx context.Context, key SigningKey) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO signing_keys (id, private_key, public_key, created_at, activated_at, retired_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var retiredAt *time.Time
	if !key.RetiredAt.IsZero() {
		retiredAt = &key.RetiredAt
	}

	_, err := p.db.ExecContext(ctx, q, key.ID, key.PrivateKey, key.PublicKey, key.CreatedAt, key.ActivatedAt, retiredAt, key.ExpiresAt)
	if err != nil {
		return fmt.Errorf("add signing key: %w", err)
	}
	return nil
}

func (p *postgres) RetireSigningKey(ctx context.Context, keyID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `UPDATE signing_keys SET retired_at = $1 WHERE id = $2`
	if _, err := p.db.ExecContext(ctx, q, at, keyID); err != nil {
		return fmt.Errorf("retire signing key: %w", err)
	}
	return nil
}

func (p *postgres) Remember(ctx context.Context, key string, response StoredResponse) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `INSERT INTO idempotency_cache (key, status_code, body, headers, expires_at) VALUES ($1, $2, $3, $4, $5)`
	headersBytes, err := json.Marshal(response.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	_, err = p.db.ExecContext(ctx, q, key, response.StatusCode, response.Body, headersBytes, response.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert cache: %w", err)
	}
	return nil
}

func (p *postgres) Recall(ctx context.Context, key string) (StoredResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	const q = `SELECT status_code, body, headers, expires_at FROM idempotency_cache WHERE key = $1 AND expires_at > $2`
	var response StoredResponse
	var headersBytes []byte
	err := p.db.QueryRowContext(ctx, q, key, time.Now().UTC()).Scan(&response.StatusCode, &response.Body, &headersBytes, &response.ExpiresAt)
	if err != nil {
		return StoredResponse{}, false
	}
	if err := json.Unmarshal(headersBytes, &response.Headers); err != nil {
		return StoredResponse{}, false
	}
	return response, true
}
