package store

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, collection, id string, v any) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	b, err := encode(id, v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[collection]
	if !ok {
		c = make(map[string][]byte)
		m.data[collection] = c
	}
	c[id] = b
	return nil
}

func (m *MemoryStore) Get(_ context.Context, collection, id string, v any) error {
	m.mu.RLock()
	b, ok := m.data[collection][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound.Msgf("%s %s not found", collection, id)
	}
	return decode(id, b, v)
}

func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[collection][id]; !ok {
		return ErrNotFound.Msgf("%s %s not found", collection, id)
	}
	delete(m.data[collection], id)
	return nil
}

func (m *MemoryStore) List(_ context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]Record, 0, len(m.data[collection]))
	for id, b := range m.data[collection] {
		recs = append(recs, Record{ID: id, Value: b})
	}
	sortRecords(recs)
	return recs, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
