// Package replay guards against a countersigned recovery token being
// accepted more than once, as required by the protocol's replay invariant.
package replay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint
// violation (23505).
const uniqueViolation = "23505"

// Guard records countersigned token digests that have already been
// accepted. Insert reports whether the digest was newly recorded; a false
// return with a nil error means the digest was already present and the
// caller must refuse the token.
type Guard interface {
	// Insert atomically records digest if absent. It returns (true, nil) if
	// this call recorded the digest for the first time, or (false, nil) if
	// the digest was already present.
	Insert(ctx context.Context, digest string) (inserted bool, err error)
}

// Memory is a process-lifetime, mutex-guarded Guard. It is the default
// backend and is what the test suite exercises.
type Memory struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemory returns an empty in-memory Guard.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

// Insert implements Guard.
func (m *Memory) Insert(ctx context.Context, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[digest]; ok {
		return false, nil
	}
	m.seen[digest] = struct{}{}
	return true, nil
}

// Postgres is a durable Guard backed by a table with a unique index on
// digest, so a concurrent duplicate insert is rejected by the database
// itself rather than by a race-prone read-then-write from this process.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an existing connection pool as a Guard. The caller is
// responsible for having run the replay_guard migration (see
// internal/store/migrations.go).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Insert implements Guard.
func (p *Postgres) Insert(ctx context.Context, digest string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	const q = `INSERT INTO replay_guard (digest, seen_at) VALUES ($1, $2)`
	_, err := p.db.ExecContext(ctx, q, digest, time.Now().UTC())
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return false, nil
	}
	return false, fmt.Errorf("delegated recovery: record replay digest: %w", err)
}
