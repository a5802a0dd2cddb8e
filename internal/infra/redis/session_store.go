package redis

import (
	"context"
	"sync"
	"time"

	"adaptive-test-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Notes:
//   - Attempts stay in a local map; their engines and timers live in this process.
//   - Redis holds a liveness marker per attempt (owner user id) so other instances can
//     tell an attempt is being served somewhere.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *SessionStore) Put(attempt *app.Attempt) {
	id := attempt.SessionID()
	s.mu.Lock()
	s.attempts[id] = attempt
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(id), attempt.UserID(), s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[sessionID]
	return attempt, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	_, ok := s.attempts[sessionID]
	delete(s.attempts, sessionID)
	s.mu.Unlock()
	if ok {
		_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "test:session:" + sessionID
}
