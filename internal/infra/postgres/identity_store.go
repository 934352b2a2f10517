package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-service/internal/domain"
	"trivia-service/internal/identity"
)

// IdentityStore persists registered identities. Username uniqueness is
// enforced by the table constraint, not by a read-then-write check.
type IdentityStore struct {
	pool *pgxpool.Pool
}

func NewIdentityStore(pool *pgxpool.Pool) *IdentityStore {
	return &IdentityStore{pool: pool}
}

func (s *IdentityStore) Create(ctx context.Context, id domain.Identity) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO identities (subject_id, username, secret_hash, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (username) DO NOTHING`,
		id.SubjectID, id.Username, id.SecretHash, id.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdentityTaken
	}
	return nil
}

func (s *IdentityStore) GetByUsername(ctx context.Context, username string) (domain.Identity, error) {
	var id domain.Identity
	err := s.pool.QueryRow(ctx,
		`SELECT subject_id, username, secret_hash, created_at FROM identities WHERE username=$1`,
		username,
	).Scan(&id.SubjectID, &id.Username, &id.SecretHash, &id.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load identity %s: %w", username, err)
	}
	return id, nil
}

var _ identity.Store = (*IdentityStore)(nil)
