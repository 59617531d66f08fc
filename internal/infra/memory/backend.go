package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"eduquest-progress/internal/domain"
)

// Backend is an in-memory progress store backend. It is the fallback when a
// durable backend fails and the default for tests and demos.
type Backend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewBackend() *Backend {
	return &Backend{data: make(map[string][]byte)}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	raw, ok := b.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (b *Backend) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.mu.Lock()
	b.data[key] = stored
	b.mu.Unlock()
	return nil
}

func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
