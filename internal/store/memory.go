package store

import (
	"context"
	"sync"
	"time"
)

type memory struct {
	mu      sync.RWMutex
	records map[string]TokenRecord

	muKeys sync.RWMutex
	keys   map[string]SigningKey

	muIdem sync.Mutex
	idem   map[string]StoredResponse
}

// NewMemory returns a concurrency-safe in-memory implementation of Store.
// It is the default backend and what the test suite exercises.
func NewMemory() Store {
	return &memory{
		records: make(map[string]TokenRecord),
		keys:    make(map[string]SigningKey),
		idem:    make(map[string]StoredResponse),
	}
}

func (m *memory) CreateTokenRecord(ctx context.Context, rec TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return ErrConflict
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memory) GetTokenRecord(ctx context.Context, id string) (TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return TokenRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memory) GetByHash(ctx context.Context, hash string) (TokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.Hash == hash {
			return rec, nil
		}
	}
	return TokenRecord{}, ErrNotFound
}

func (m *memory) UpdateStatus(ctx context.Context, id string, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = at
	m.records[id] = rec
	return nil
}

func (m *memory) DeleteTokenRecord(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memory) GetCurrentSigningKey(ctx context.Context) (SigningKey, error) {
	m.muKeys.RLock()
	defer m.muKeys.RUnlock()

	now := time.Now().UTC()
	var current SigningKey
	var found bool
	for _, key := range m.keys {
		if !key.RetiredAt.IsZero() && key.RetiredAt.Before(now) {
			continue
		}
		if key.ActivatedAt.After(now) {
			continue
		}
		if !found || key.ActivatedAt.After(current.ActivatedAt) {
			current = cloneSigningKey(key)
			found = true
		}
	}
	if !found {
		return SigningKey{}, ErrNotFound
	}
	return current, nil
}

func (m *memory) ListVerificationKeys(ctx context.Context) ([]SigningKey, error) {
	m.muKeys.RLock()
	defer m.muKeys.RUnlock()

	now := time.Now().UTC()
	var keys []SigningKey
	for _, key := range m.keys {
		if !key.ExpiresAt.IsZero() && key.ExpiresAt.Before(now) {
			continue
		}
		if key.ActivatedAt.After(now) {
			continue
		}
		keys = append(keys, cloneSigningKey(key))
	}
	return keys, nil
}

func (m *memory) AddSigningKey(ctx context.Context, key SigningKey) error {
	m.muKeys.Lock()
	defer m.muKeys.Unlock()
	m.keys[key.ID] = cloneSigningKey(key)
	return nil
}

func (m *memory) RetireSigningKey(ctx context.Context, keyID string, at time.Time) error {
	m.muKeys.Lock()
	defer m.muKeys.Unlock()
	key, ok := m.keys[keyID]
	if !ok {
		return ErrNotFound
	}
	key.RetiredAt = at
	m.keys[keyID] = key
	return nil
}

func (m *memory) Remember(ctx context.Context, key string, response StoredResponse) error {
	m.muIdem.Lock()
	defer m.muIdem.Unlock()
	m.idem[key] = response
	return nil
}

func (m *memory) Recall(ctx context.Context, key string) (StoredResponse, bool) {
	m.muIdem.Lock()
	defer m.muIdem.Unlock()
	resp, ok := m.idem[key]
	if !ok {
		return StoredResponse{}, false
	}
	if time.Now().After(resp.ExpiresAt) {
		delete(m.idem, key)
		return StoredResponse{}, false
	}
	return resp, true
}

func cloneSigningKey(in SigningKey) SigningKey {
	out := in
	if in.PrivateKey != nil {
		out.PrivateKey = append([]byte(nil), in.PrivateKey...)
	}
	if in.PublicKey != nil {
		out.PublicKey = append([]byte(nil), in.PublicKey...)
	}
	return out
}
