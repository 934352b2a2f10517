package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// QuestionStore reads the question bank and answer keys from Postgres.
// Choices are stored as a JSONB array to keep their order.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) ListActiveQuestionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM questions WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("list active questions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active questions: %w", err)
	}
	return ids, nil
}

func (s *QuestionStore) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	var (
		prompt string
		raw    []byte
		active bool
	)
	err := s.pool.QueryRow(ctx,
		`SELECT prompt, choices, active FROM questions WHERE id=$1`, questionID,
	).Scan(&prompt, &raw, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question %s: %w", questionID, err)
	}

	var choices []string
	if err := json.Unmarshal(raw, &choices); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal choices for %s: %w", questionID, domain.ErrDataIntegrity)
	}
	return domain.Question{ID: questionID, Prompt: prompt, Choices: choices, Active: active}, nil
}

func (s *QuestionStore) GetAnswerKey(ctx context.Context, questionID string) (domain.AnswerKey, error) {
	var correct int
	err := s.pool.QueryRow(ctx,
		`SELECT correct_index FROM answer_keys WHERE question_id=$1`, questionID,
	).Scan(&correct)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AnswerKey{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.AnswerKey{}, fmt.Errorf("load answer key %s: %w", questionID, err)
	}
	return domain.AnswerKey{QuestionID: questionID, CorrectIndex: correct}, nil
}

var _ app.QuestionStore = (*QuestionStore)(nil)
