package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
)

// Store persists session records by session ID. Get returns errors.ErrSessionNotFound
// for unknown or expired IDs.
type Store interface {
	Get(ctx context.Context, sessionID string) (Record, error)
	Put(ctx context.Context, sessionID string, record Record) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is an in-process Store. Records older than the TTL are treated as absent.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	ttl     time.Duration
	nowFunc func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store whose records expire ttl after their last write. Zero disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// WithNowFunc replaces the store clock
func (m *MemoryStore) WithNowFunc(nowFunc func() time.Time) *MemoryStore {
	m.nowFunc = nowFunc
	return m
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (Record, error) {
	if sessionID == "" {
		return Record{}, fmt.Errorf("sessionID is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[sessionID]
	if !ok || m.expired(rec) {
		return Record{}, apperrors.ErrSessionNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Put(_ context.Context, sessionID string, record Record) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = m.nowFunc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[sessionID] = record
	m.sweepLocked()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, sessionID)
	return nil
}

func (m *MemoryStore) expired(rec Record) bool {
	return m.ttl > 0 && !m.nowFunc().Before(rec.UpdatedAt.Add(m.ttl))
}

func (m *MemoryStore) sweepLocked() {
	for id, rec := range m.records {
		if m.expired(rec) {
			delete(m.records, id)
		}
	}
}
