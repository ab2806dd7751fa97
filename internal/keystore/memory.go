package keystore

import (
	"context"
	"sync"
)

// MemoryStore implementa Store en memoria. Útil para desarrollo y testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory crea un store vacío.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(names))
	for _, n := range names {
		if v, ok := m.data[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) SetMany(ctx context.Context, entries []Entry) error {
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if _, exists := m.data[e.Name]; exists && !e.Overwrite {
			continue
		}
		m.data[e.Name] = e.Value
	}
	return nil
}

// Snapshot devuelve una copia del contenido (tests/CLI).
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}
