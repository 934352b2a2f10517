package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// StaticQuestionStore is a question bank backed by in-memory maps (useful
// for tests/demos and as the fallback bank when Postgres is not configured).
type StaticQuestionStore struct {
	questions map[string]domain.Question
	keys      map[string]domain.AnswerKey
}

// NewStaticQuestionStore builds a bank from questions and a question-id to
// correct-index map.
func NewStaticQuestionStore(questions []domain.Question, correct map[string]int) *StaticQuestionStore {
	s := &StaticQuestionStore{
		questions: make(map[string]domain.Question, len(questions)),
		keys:      make(map[string]domain.AnswerKey, len(correct)),
	}
	for _, q := range questions {
		s.questions[q.ID] = q
	}
	for id, idx := range correct {
		s.keys[id] = domain.AnswerKey{QuestionID: id, CorrectIndex: idx}
	}
	return s
}

func (s *StaticQuestionStore) ListActiveQuestionIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.questions))
	for id, q := range s.questions {
		if q.Active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *StaticQuestionStore) GetQuestion(_ context.Context, questionID string) (domain.Question, error) {
	if q, ok := s.questions[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *StaticQuestionStore) GetAnswerKey(_ context.Context, questionID string) (domain.AnswerKey, error) {
	if k, ok := s.keys[questionID]; ok {
		return k, nil
	}
	return domain.AnswerKey{}, domain.ErrQuestionNotFound
}

// QuestionCache decorates a backing store with a TTL cache so hot questions
// and answer keys avoid repeated store hits. Concurrent misses for the same
// entry collapse into one backing call via singleflight.
type QuestionCache struct {
	backing app.QuestionStore
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	mu        sync.RWMutex
	rnd       *rand.Rand
	activeIDs cachedIDs
	questions map[string]cachedQuestion
	keys      map[string]cachedKey
}

type cachedIDs struct {
	ids       []string
	expiresAt time.Time
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

type cachedKey struct {
	key       domain.AnswerKey
	expiresAt time.Time
}

func NewQuestionCache(backing app.QuestionStore, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		backing:   backing,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		questions: make(map[string]cachedQuestion),
		keys:      make(map[string]cachedKey),
	}
}

func (c *QuestionCache) ListActiveQuestionIDs(ctx context.Context) ([]string, error) {
	now := c.clock()

	c.mu.RLock()
	if c.activeIDs.ids != nil && c.activeIDs.expiresAt.After(now) {
		ids := append([]string(nil), c.activeIDs.ids...)
		c.mu.RUnlock()
		return ids, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("active-ids", func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if c.activeIDs.ids != nil && c.activeIDs.expiresAt.After(now) {
			ids := append([]string(nil), c.activeIDs.ids...)
			c.mu.RUnlock()
			return ids, nil
		}
		c.mu.RUnlock()

		ids, err := c.backing.ListActiveQuestionIDs(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.activeIDs = cachedIDs{ids: append([]string(nil), ids...), expiresAt: now.Add(c.ttlWithJitterLocked())}
		c.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *QuestionCache) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.questions[questionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.question, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("question:"+questionID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.questions[questionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.question, nil
		}
		c.mu.RUnlock()

		question, err := c.backing.GetQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		c.mu.Lock()
		c.questions[questionID] = cachedQuestion{question: question, expiresAt: now.Add(c.ttlWithJitterLocked())}
		c.mu.Unlock()
		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCache) GetAnswerKey(ctx context.Context, questionID string) (domain.AnswerKey, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.keys[questionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.key, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("key:"+questionID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.keys[questionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.key, nil
		}
		c.mu.RUnlock()

		key, err := c.backing.GetAnswerKey(ctx, questionID)
		if err != nil {
			return domain.AnswerKey{}, err
		}

		c.mu.Lock()
		c.keys[questionID] = cachedKey{key: key, expiresAt: now.Add(c.ttlWithJitterLocked())}
		c.mu.Unlock()
		return key, nil
	})
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return result.(domain.AnswerKey), nil
}

func (c *QuestionCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

var _ app.QuestionStore = (*StaticQuestionStore)(nil)
var _ app.QuestionStore = (*QuestionCache)(nil)
