package repository

import (
	"context"
	"sync"
	"time"

	"adspot/internal/models"
)

type memoryEntry struct {
	entries   []models.Availability
	expiresAt time.Time
}

// MemoryAvailabilityCache is the in-process fallback used when redis is
// unreachable. Entries expire lazily on read.
type MemoryAvailabilityCache struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	ttl   time.Duration
}

func NewMemoryAvailabilityCache(ttl time.Duration) *MemoryAvailabilityCache {
	return &MemoryAvailabilityCache{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
	}
}

func (m *MemoryAvailabilityCache) Get(ctx context.Context, placement string, day time.Time) ([]models.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := availabilityKey(placement, day)
	item, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(item.expiresAt) {
		delete(m.items, key)
		return nil, nil
	}
	return item.entries, nil
}

func (m *MemoryAvailabilityCache) Set(ctx context.Context, placement string, day time.Time, entries []models.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[availabilityKey(placement, day)] = memoryEntry{
		entries:   entries,
		expiresAt: time.Now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryAvailabilityCache) Invalidate(ctx context.Context, placement string, days ...time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, day := range days {
		delete(m.items, availabilityKey(placement, day))
	}
	return nil
}
