package cache

import (
	"context"
	"sync"
	"time"

	"virtufit-backend/internal/relay"
)

// MemoryStore is a process-local Store used when no Redis URL is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryItem[Entry]
	tasks    map[string]memoryItem[relay.Snapshot]
	ttl      time.Duration
	now      func() time.Time
}

type memoryItem[T any] struct {
	value     T
	expiresAt time.Time
}

func (i memoryItem[T]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryItem[Entry]),
		tasks:    make(map[string]memoryItem[relay.Snapshot]),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*Entry, error) {
	s.mu.RLock()
	item, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || item.expired(s.now()) {
		return nil, ErrNotFound
	}
	e := item.value
	return &e, nil
}

func (s *MemoryStore) PutSession(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[entry.SessionID] = memoryItem[Entry]{value: *entry, expiresAt: s.expiry()}
	return nil
}

func (s *MemoryStore) GetTask(ctx context.Context, taskID string) (*relay.Snapshot, error) {
	s.mu.RLock()
	item, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok || item.expired(s.now()) {
		return nil, ErrNotFound
	}
	snap := item.value
	return &snap, nil
}

func (s *MemoryStore) PutTask(ctx context.Context, snap *relay.Snapshot) error {
	if !snap.IsTerminal() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[snap.TaskID]; ok && !existing.expired(s.now()) {
		return nil
	}
	s.tasks[snap.TaskID] = memoryItem[relay.Snapshot]{value: *snap, expiresAt: s.expiry()}
	s.evictExpired()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expiry() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

// evictExpired drops stale entries; callers hold the write lock.
func (s *MemoryStore) evictExpired() {
	now := s.now()
	for k, v := range s.sessions {
		if v.expired(now) {
			delete(s.sessions, k)
		}
	}
	for k, v := range s.tasks {
		if v.expired(now) {
			delete(s.tasks, k)
		}
	}
}
