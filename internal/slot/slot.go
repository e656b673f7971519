// Package slot provides small durable key/value slots used for app
// bookkeeping such as the fired-reminder set.
package slot

import (
	"context"
	"sync"

	"github.com/nick-dorsch/projectpilot/internal/db"
)

// Store reads and overwrites whole values by key. Get reports ok=false for a
// key that was never written.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Memory is a process-local Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// SQLite stores slots in the local database.
type SQLite struct {
	db *db.DB
}

func NewSQLite(d *db.DB) *SQLite {
	return &SQLite{db: d}
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	return s.db.GetSlot(ctx, key)
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	return s.db.SetSlot(ctx, key, value)
}
