package memory

import (
	"context"
	"sync"

	"trivia-service/internal/domain"
)

// IdentityStore keeps registered identities in a map, keyed by username.
type IdentityStore struct {
	mu         sync.RWMutex
	byUsername map[string]domain.Identity
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{byUsername: make(map[string]domain.Identity)}
}

func (s *IdentityStore) Create(_ context.Context, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[id.Username]; ok {
		return domain.ErrIdentityTaken
	}
	s.byUsername[id.Username] = id
	return nil
}

func (s *IdentityStore) GetByUsername(_ context.Context, username string) (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return id, nil
}
