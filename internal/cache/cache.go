// Package cache provides the content-addressed key-value store backing the
// vulnerability feed client. Entries carry a time-to-live; a zero TTL means
// the entry never expires (used for CVE publication dates, which are
// immutable once assigned).
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the cache collaborator injected into the feed client
type Store interface {
	// Get returns the cached payload for key, or ok=false when the key is
	// absent or its TTL has elapsed
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores a payload under key. ttl <= 0 stores it without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Sweep removes expired entries and returns how many were dropped
	Sweep(ctx context.Context) (int, error)

	// Close releases underlying resources
	Close() error
}

// MemoryStore implements Store with a mutex-guarded map. It backs tests and
// the "memory" cache type; nothing survives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory cache
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && entry.expiresAt.Before(s.now()) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Put implements Store
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Sweep implements Store
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	now := s.now()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && entry.expiresAt.Before(now) {
			delete(s.entries, key)
			dropped++
		}
	}
	return dropped, nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
