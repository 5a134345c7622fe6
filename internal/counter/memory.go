package counter

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	points       int64
	windowEnd    time.Time
	blockedUntil time.Time
	expiresAt    time.Time
}

// sweepInterval bounds how long expired entries of unread keys stay in
// memory.
const sweepInterval = time.Minute

// MemoryStore is a single-process Store guarded by a mutex.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	entries   map[string]*memoryEntry
	nextSweep time.Time
}

// NewMemoryStore builds an empty store. A nil clock defaults to time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:       now,
		entries:   make(map[string]*memoryEntry),
		nextSweep: now().Add(sweepInterval),
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, points int64, window time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.maybeSweepLocked(now)
	entry := s.liveLocked(key, now)
	if entry == nil {
		entry = &memoryEntry{windowEnd: now.Add(window), expiresAt: now.Add(window)}
		s.entries[key] = entry
	}
	entry.points += points
	return entry.record(), nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.liveLocked(key, s.now())
	if entry == nil {
		return nil, nil
	}
	return entry.record(), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Block(_ context.Context, key string, d time.Duration) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := s.liveLocked(key, now)
	if entry == nil {
		return nil, nil
	}
	if entry.blockedUntil.After(now) {
		return entry.record(), nil
	}
	entry.blockedUntil = now.Add(d)
	entry.expiresAt = entry.blockedUntil
	return entry.record(), nil
}

// liveLocked returns the entry for key, dropping it when expired.
func (s *MemoryStore) liveLocked(key string, now time.Time) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return entry
}

// maybeSweepLocked drops every expired entry, at most once per
// sweepInterval. Increment is the only path that adds keys, so sweeping there
// keeps the map bounded by the keys live within one interval.
func (s *MemoryStore) maybeSweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

func (e *memoryEntry) record() *Record {
	return &Record{
		ConsumedPoints:  e.points,
		WindowExpiresAt: e.windowEnd,
		BlockedUntil:    e.blockedUntil,
	}
}
