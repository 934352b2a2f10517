package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"trivia-service/internal/domain"
)

// QuestionStore is the read-only answer-key store the engine consumes
// (backed by Postgres, Redis cache, or an in-memory bank).
type QuestionStore interface {
	ListActiveQuestionIDs(ctx context.Context) ([]string, error)
	GetQuestion(ctx context.Context, questionID string) (domain.Question, error)
	GetAnswerKey(ctx context.Context, questionID string) (domain.AnswerKey, error)
}

// SessionRepository abstracts how session ledgers are stored (in-memory,
// Redis-marked, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// TokenValidator validates a credential and returns the subject it binds.
type TokenValidator interface {
	Validate(credential string) (string, error)
}

// Config tunes the engine. Zero values pick the defaults below.
type Config struct {
	// MaxHistory bounds the repeat-avoidance window.
	MaxHistory int
	// IdleTTL ends sessions that have gone quiet.
	IdleTTL time.Duration
	// StoreTimeout bounds each question-store call so a stalled store never
	// wedges a session.
	StoreTimeout time.Duration
}

const (
	defaultMaxHistory   = 1
	defaultIdleTTL      = 30 * time.Minute
	defaultStoreTimeout = 3 * time.Second
)

// Engine composes the token service, question selector, session ledger and
// answer-key store into the trivia use cases.
type Engine struct {
	tokens   TokenValidator
	sessions SessionRepository
	store    QuestionStore
	selector *Selector
	cfg      Config
}

func NewEngine(tokens TokenValidator, sessions SessionRepository, store QuestionStore, selector *Selector, cfg Config) *Engine {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &Engine{
		tokens:   tokens,
		sessions: sessions,
		store:    store,
		selector: selector,
		cfg:      cfg,
	}
}

// StartSession creates a fresh session owned by the credential's subject.
func (e *Engine) StartSession(_ context.Context, credential string) (domain.SessionSummary, error) {
	subject, err := e.tokens.Validate(credential)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	session := NewSession(uuid.NewString(), subject)
	e.sessions.Put(session)
	return session.Summary(), nil
}

// GetNextQuestion returns the session's pending question when one is
// outstanding (so refetching cannot dodge a hard question), otherwise draws
// a new one and records it. The answer key is never part of the view.
func (e *Engine) GetNextQuestion(ctx context.Context, credential, sessionID string) (domain.QuestionView, error) {
	session, err := e.authorize(credential, sessionID)
	if err != nil {
		return domain.QuestionView{}, err
	}

	if current := session.CurrentQuestion(); current != "" {
		question, err := e.getQuestion(ctx, current)
		if err != nil {
			return domain.QuestionView{}, err
		}
		return question.View(), nil
	}

	question, err := e.selectNext(ctx, session.History())
	if err != nil {
		return domain.QuestionView{}, err
	}
	served, err := session.RecordQuestionServed(question.ID, e.cfg.MaxHistory)
	if err != nil {
		return domain.QuestionView{}, err
	}
	if served != question.ID {
		// A concurrent request served a question first; that one stands.
		question, err = e.getQuestion(ctx, served)
		if err != nil {
			return domain.QuestionView{}, err
		}
	}
	return question.View(), nil
}

// SubmitAnswer grades choiceIndex against the hidden answer key and applies
// the outcome atomically. The correct answer text is disclosed only here.
func (e *Engine) SubmitAnswer(ctx context.Context, credential, sessionID, questionID string, choiceIndex int) (domain.AnswerOutcome, error) {
	session, err := e.authorize(credential, sessionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if questionID == "" {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: question id is required", domain.ErrInvalidInput)
	}

	question, err := e.getQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			// Unknown to the bank: a stale or replayed id, unless the ledger
			// believes it is still pending, which means the bank lost it.
			outcome, rerr := session.ReplayOrReject(questionID)
			if errors.Is(rerr, domain.ErrDataIntegrity) {
				log.Printf("integrity: pending question %s missing from bank (session %s)", questionID, sessionID)
			}
			return outcome, rerr
		}
		return domain.AnswerOutcome{}, err
	}
	if choiceIndex < 0 || choiceIndex >= len(question.Choices) {
		return domain.AnswerOutcome{}, fmt.Errorf("%w: choice index %d out of range [0,%d)", domain.ErrInvalidInput, choiceIndex, len(question.Choices))
	}

	key, err := e.getAnswerKey(ctx, questionID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if key.CorrectIndex < 0 || key.CorrectIndex >= len(question.Choices) {
		log.Printf("integrity: answer key for question %s out of range (index %d, %d choices)", questionID, key.CorrectIndex, len(question.Choices))
		return domain.AnswerOutcome{}, fmt.Errorf("answer key for question %s: %w", questionID, domain.ErrDataIntegrity)
	}

	outcome := domain.AnswerOutcome{
		QuestionID:    questionID,
		Correct:       choiceIndex == key.CorrectIndex,
		CorrectIndex:  key.CorrectIndex,
		CorrectAnswer: question.Choices[key.CorrectIndex],
	}
	return session.ApplyAnswerOutcome(questionID, outcome)
}

// EndSession terminates the session. Calling it again is not an error; the
// second call acknowledges the already-ended state.
func (e *Engine) EndSession(_ context.Context, credential, sessionID string) (domain.SessionSummary, error) {
	subject, err := e.tokens.Validate(credential)
	if err != nil {
		return domain.SessionSummary{}, err
	}
	session, ok := e.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSummary{}, domain.ErrSessionNotFound
	}
	if session.SubjectID() != subject {
		return domain.SessionSummary{}, domain.ErrInvalidCredential
	}
	return session.End(), nil
}

// authorize validates the credential, resolves the session, checks
// ownership, and expires the session if it has idled out.
func (e *Engine) authorize(credential, sessionID string) (*Session, error) {
	subject, err := e.tokens.Validate(credential)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	session, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.SubjectID() != subject {
		// Do not reveal whether the session exists to another subject.
		return nil, domain.ErrInvalidCredential
	}
	if session.ExpireIfIdle(e.cfg.IdleTTL) {
		return nil, domain.ErrSessionEnded
	}
	return session, nil
}

// Store lookups run under a bounded timeout and never while holding a
// session lock; a deadline surfaces as a retryable error.

func (e *Engine) selectNext(ctx context.Context, exclude []string) (domain.Question, error) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	question, err := e.selector.Next(tctx, exclude)
	if err != nil {
		return domain.Question{}, e.storeErr(err)
	}
	return question, nil
}

func (e *Engine) getQuestion(ctx context.Context, questionID string) (domain.Question, error) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	question, err := e.store.GetQuestion(tctx, questionID)
	if err != nil {
		return domain.Question{}, e.storeErr(err)
	}
	return question, nil
}

func (e *Engine) getAnswerKey(ctx context.Context, questionID string) (domain.AnswerKey, error) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()
	key, err := e.store.GetAnswerKey(tctx, questionID)
	if err != nil {
		if errors.Is(err, domain.ErrQuestionNotFound) {
			log.Printf("integrity: no answer key for question %s", questionID)
			return domain.AnswerKey{}, fmt.Errorf("answer key for question %s: %w", questionID, domain.ErrDataIntegrity)
		}
		return domain.AnswerKey{}, e.storeErr(err)
	}
	return key, nil
}

func (e *Engine) storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}
