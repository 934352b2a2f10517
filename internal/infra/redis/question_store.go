package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// QuestionStore caches the question bank in Redis and falls back to a
// backing store on cache miss. Layout:
//
//	SADD trivia:questions:active {questionID...}
//	HSET trivia:question:{questionID} prompt {text} choices {json} correct {index}
//
// The correct index never leaves this process; it is cache content, not
// client content.
type QuestionStore struct {
	client  *redis.Client
	backing app.QuestionStore
	ttl     time.Duration
	sf      singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionStore(client *redis.Client, backing app.QuestionStore, ttl time.Duration) *QuestionStore {
	return &QuestionStore{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *QuestionStore) ListActiveQuestionIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err == nil && len(ids) > 0 {
		return ids, nil
	}

	result, err, _ := s.sf.Do("active", func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
		if err == nil && len(ids) > 0 {
			return ids, nil
		}

		ids, err = s.backing.ListActiveQuestionIDs(ctx)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			pipe := s.client.Pipeline()
			members := make([]interface{}, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, s.activeKey(), members...)
			if ttl := s.ttlWithJitter(); ttl > 0 {
				pipe.Expire(ctx, s.activeKey(), ttl)
			}
			_, _ = pipe.Exec(ctx)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (s *QuestionStore) GetQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	fields, err := s.client.HGetAll(ctx, s.questionKey(questionID)).Result()
	if err == nil {
		if q, ok := questionFromCache(questionID, fields); ok {
			return q, nil
		}
	}

	result, err, _ := s.sf.Do("question:"+questionID, func() (interface{}, error) {
		fields, err := s.client.HGetAll(ctx, s.questionKey(questionID)).Result()
		if err == nil {
			if q, ok := questionFromCache(questionID, fields); ok {
				return q, nil
			}
		}

		question, err := s.backing.GetQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		choices, err := json.Marshal(question.Choices)
		if err != nil {
			return domain.Question{}, fmt.Errorf("marshal choices: %w", err)
		}
		pipe := s.client.Pipeline()
		pipe.HSet(ctx, s.questionKey(questionID),
			"prompt", question.Prompt,
			"choices", string(choices),
			"active", boolField(question.Active),
		)
		if ttl := s.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, s.questionKey(questionID), ttl)
		}
		_, _ = pipe.Exec(ctx)

		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (s *QuestionStore) GetAnswerKey(ctx context.Context, questionID string) (domain.AnswerKey, error) {
	raw, err := s.client.HGet(ctx, s.questionKey(questionID), "correct").Result()
	if err == nil {
		if idx, err := strconv.Atoi(raw); err == nil {
			return domain.AnswerKey{QuestionID: questionID, CorrectIndex: idx}, nil
		}
	}

	result, err, _ := s.sf.Do("key:"+questionID, func() (interface{}, error) {
		raw, err := s.client.HGet(ctx, s.questionKey(questionID), "correct").Result()
		if err == nil {
			if idx, err := strconv.Atoi(raw); err == nil {
				return domain.AnswerKey{QuestionID: questionID, CorrectIndex: idx}, nil
			}
		}

		key, err := s.backing.GetAnswerKey(ctx, questionID)
		if err != nil {
			return domain.AnswerKey{}, err
		}

		pipe := s.client.Pipeline()
		pipe.HSet(ctx, s.questionKey(questionID), "correct", key.CorrectIndex)
		if ttl := s.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, s.questionKey(questionID), ttl)
		}
		_, _ = pipe.Exec(ctx)

		return key, nil
	})
	if err != nil {
		return domain.AnswerKey{}, err
	}
	return result.(domain.AnswerKey), nil
}

func (s *QuestionStore) activeKey() string {
	return "trivia:questions:active"
}

func (s *QuestionStore) questionKey(questionID string) string {
	return "trivia:question:" + questionID
}

func questionFromCache(questionID string, fields map[string]string) (domain.Question, bool) {
	prompt, okPrompt := fields["prompt"]
	rawChoices, okChoices := fields["choices"]
	if !okPrompt || !okChoices {
		return domain.Question{}, false
	}
	var choices []string
	if err := json.Unmarshal([]byte(rawChoices), &choices); err != nil {
		return domain.Question{}, false
	}
	return domain.Question{
		ID:      questionID,
		Prompt:  prompt,
		Choices: choices,
		Active:  fields["active"] == "1",
	}, true
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *QuestionStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}

var _ app.QuestionStore = (*QuestionStore)(nil)
