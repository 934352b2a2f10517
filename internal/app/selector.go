package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// Selector picks the next question uniformly at random among active
// questions, excluding the session's recent history whenever more than one
// candidate remains. Randomness is injected per instance; there is no
// package-global generator.
type Selector struct {
	store QuestionStore

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector builds a selector over store. A nil src seeds from the clock.
func NewSelector(store QuestionStore, src rand.Source) *Selector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Selector{store: store, rnd: rand.New(src)}
}

// Next draws the next question, excluding ids in exclude. When exclusion
// would leave nothing to pick, the full active set is used instead, so a
// one-question bank repeats rather than blocking. An empty bank returns
// ErrNoQuestionsAvailable. The returned Question carries no answer key.
func (s *Selector) Next(ctx context.Context, exclude []string) (domain.Question, error) {
	ids, err := s.store.ListActiveQuestionIDs(ctx)
	if err != nil {
		return domain.Question{}, fmt.Errorf("list active questions: %w", err)
	}
	if len(ids) == 0 {
		return domain.Question{}, domain.ErrNoQuestionsAvailable
	}
	sort.Strings(ids)

	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}
	eligible := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := excluded[id]; !ok {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		eligible = ids
	}

	pick := eligible[s.intn(len(eligible))]

	question, err := s.store.GetQuestion(ctx, pick)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			// The active list promised this id; a miss means the bank is
			// inconsistent, not that the caller asked for a bad question.
			return domain.Question{}, fmt.Errorf("question %s listed but missing: %w", pick, domain.ErrDataIntegrity)
		}
		return domain.Question{}, fmt.Errorf("get question %s: %w", pick, err)
	}
	if len(question.Choices) < 2 {
		return domain.Question{}, fmt.Errorf("question %s has %d choices: %w", pick, len(question.Choices), domain.ErrDataIntegrity)
	}
	return question, nil
}

func (s *Selector) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}
