package imagestore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	jpeg     []byte
	uploaded time.Time
}

// Memory is the in-process Store used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-memory store. ttl <= 0 selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Put(_ context.Context, sessionID string, jpeg []byte) error {
	cp := make([]byte, len(jpeg))
	copy(cp, jpeg)
	m.mu.Lock()
	m.entries[sessionID] = memoryEntry{jpeg: cp, uploaded: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) TakePending(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return nil, nil
	}
	delete(m.entries, sessionID)
	if m.now().Sub(e.uploaded) > m.ttl {
		return nil, nil
	}
	return e.jpeg, nil
}

func (m *Memory) Discard(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.entries, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Len reports the number of pending frames, for /health.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
