package history

import (
	"context"
	"sync"
)

// NewMemoryStore keeps the newest size records in a ring.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 1
	}
	return &MemoryStore{ring: make([]Record, size)}
}

type MemoryStore struct {
	mu     sync.Mutex
	ring   []Record
	next   int
	count  int
	closed bool
}

func (m *MemoryStore) Add(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ring[m.next] = r
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	n := m.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, m.ring[(m.next-i+len(m.ring))%len(m.ring)])
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
