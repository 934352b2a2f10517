package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Ledger state stays in a local in-memory map so per-session locking
//     keeps working in-process.
//   - Redis marks session liveness with a TTL key, so operators can see
//     active sessions across instances and stale markers age out on their
//     own.
//   - For true distribution you'd pair this with a shared projection of
//     session snapshots; the marker keys are the hook for that.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.ID()), session.SubjectID(), s.ttl).Err()
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	delete(s.sessions, sessionID)
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// Sweep drops ended or idle sessions and clears their liveness markers.
func (s *SessionStore) Sweep(idleTTL time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, session := range s.sessions {
		if session.Evictable(idleTTL) {
			delete(s.sessions, id)
			_ = s.client.Del(context.Background(), s.key(id)).Err()
			evicted++
		}
	}
	return evicted
}

func (s *SessionStore) key(sessionID string) string {
	return "trivia:session:" + sessionID
}

var _ app.SessionRepository = (*SessionStore)(nil)
