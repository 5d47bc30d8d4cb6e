package runstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory run store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	closed  bool
}

// NewMemoryStore creates a new in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.records[rec.RunID] = clone(*rec)
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, runID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := m.records[runID]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(rec)
	return &out, nil
}

// List implements Store.
func (m *MemoryStore) List(context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]Info, 0, len(m.records))
	for _, rec := range m.records {
		infos = append(infos, rec.Info())
	}
	sortInfos(infos)
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func clone(rec Record) Record {
	rec.Data = append([]byte(nil), rec.Data...)
	return rec
}
