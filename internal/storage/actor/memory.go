package actor

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process actor store used in tests.
type MemoryStore struct {
	mu        sync.Mutex
	instances map[string]map[string]json.RawMessage
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory actor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]map[string]json.RawMessage)}
}

func (m *MemoryStore) Get(_ context.Context, name, key string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.instances[name]
	if !ok {
		return false, nil
	}
	raw, ok := keys[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MemoryStore) Put(_ context.Context, name, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.instances[name]
	if !ok {
		keys = make(map[string]json.RawMessage)
		m.instances[name] = keys
	}
	keys[key] = raw
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, name)
	return nil
}
