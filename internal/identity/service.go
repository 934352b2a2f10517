package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"trivia-service/internal/domain"
)

// MinSecretLength is the shortest secret Register accepts.
const MinSecretLength = 8

// Store abstracts how identities are persisted (in-memory, Postgres).
type Store interface {
	// Create persists a new identity. Returns domain.ErrIdentityTaken when
	// the username already exists.
	Create(ctx context.Context, id domain.Identity) error
	// GetByUsername returns domain.ErrUnauthorized for unknown usernames.
	GetByUsername(ctx context.Context, username string) (domain.Identity, error)
}

// Service is the single identity collaborator the engine depends on:
// verify a credential pair, hand back a subject id.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Register creates an identity and returns its subject id. The secret is
// bcrypt-hashed before it reaches the store.
func (s *Service) Register(ctx context.Context, username, secret string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if len(secret) < MinSecretLength {
		return "", fmt.Errorf("%w: secret must be at least %d characters", domain.ErrInvalidInput, MinSecretLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}

	id := domain.Identity{
		SubjectID:  uuid.NewString(),
		Username:   username,
		SecretHash: hash,
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, id); err != nil {
		return "", err
	}
	return id.SubjectID, nil
}

// Verify checks a username/secret pair and returns the subject id. Unknown
// usernames and wrong secrets are indistinguishable to the caller.
func (s *Service) Verify(ctx context.Context, username, secret string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return "", domain.ErrUnauthorized
	}

	id, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return "", domain.ErrUnauthorized
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword(id.SecretHash, []byte(secret)); err != nil {
		return "", domain.ErrUnauthorized
	}
	return id.SubjectID, nil
}
