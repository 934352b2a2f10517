package app

import (
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// Session is the server-side ledger for one play-through: score, the
// question currently awaiting an answer, and the repeat-avoidance history.
// Every mutation runs under the session's own mutex, so mutations for one
// session are totally ordered while distinct sessions never contend.
type Session struct {
	id        string
	subjectID string
	createdAt time.Time
	now       func() time.Time

	mu          sync.Mutex
	state       domain.SessionState
	score       int
	current     string // question id awaiting an answer, "" when none
	history     []string
	lastOutcome *domain.AnswerOutcome
	lastActive  time.Time
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(id, subjectID string) *Session {
	return newSessionWithClock(id, subjectID, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id, subjectID string, now func() time.Time) *Session {
	return newSessionWithClock(id, subjectID, now)
}

func newSessionWithClock(id, subjectID string, now func() time.Time) *Session {
	t := now()
	return &Session{
		id:         id,
		subjectID:  subjectID,
		createdAt:  t,
		now:        now,
		state:      domain.SessionActive,
		lastActive: t,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) SubjectID() string { return s.subjectID }

// CurrentQuestion returns the id of the unanswered question, or "".
func (s *Session) CurrentQuestion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// History returns a copy of the recently served question ids.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// Summary snapshots the session for acknowledgements.
func (s *Session) Summary() domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() domain.SessionSummary {
	return domain.SessionSummary{
		SessionID: s.id,
		SubjectID: s.subjectID,
		Score:     s.score,
		State:     s.state,
	}
}

// RecordQuestionServed marks questionID as the session's pending question
// and appends it to the bounded history. If another request already set a
// pending question, that question stands and its id is returned instead, so
// at most one question is ever outstanding.
func (s *Session) RecordQuestionServed(questionID string, maxHistory int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionEnded {
		return "", domain.ErrSessionEnded
	}
	s.lastActive = s.now()
	if s.current != "" {
		return s.current, nil
	}
	s.current = questionID
	s.history = append(s.history, questionID)
	if maxHistory > 0 && len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}
	return questionID, nil
}

// ApplyAnswerOutcome grades the pending question in a single atomic step:
// score is read, incremented and written under the session lock, and the
// pending slot is cleared so a new question must be drawn before another
// submission. Submissions for any other question return ErrStaleQuestion;
// when they match the previously graded question the recorded outcome is
// returned alongside the error so retries are observably idempotent.
func (s *Session) ApplyAnswerOutcome(questionID string, outcome domain.AnswerOutcome) (domain.AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionEnded {
		return domain.AnswerOutcome{}, domain.ErrSessionEnded
	}
	s.lastActive = s.now()

	if questionID != "" && questionID == s.current {
		if outcome.Correct {
			s.score++
		}
		outcome.NewScore = s.score
		s.current = ""
		recorded := outcome
		s.lastOutcome = &recorded
		return outcome, nil
	}
	return s.replayLocked(questionID)
}

// ReplayOrReject resolves a submission for a question id that is not in the
// question bank: a replay of the last graded question, a stale id, or a
// pending question the bank no longer knows (data corruption).
func (s *Session) ReplayOrReject(questionID string) (domain.AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionEnded {
		return domain.AnswerOutcome{}, domain.ErrSessionEnded
	}
	if questionID != "" && questionID == s.current {
		return domain.AnswerOutcome{}, domain.ErrDataIntegrity
	}
	return s.replayLocked(questionID)
}

func (s *Session) replayLocked(questionID string) (domain.AnswerOutcome, error) {
	if s.lastOutcome != nil && s.lastOutcome.QuestionID == questionID {
		replay := *s.lastOutcome
		replay.Replayed = true
		return replay, domain.ErrStaleQuestion
	}
	return domain.AnswerOutcome{}, domain.ErrStaleQuestion
}

// End transitions the session to its terminal state. Ending twice is a
// no-op returning the already-ended summary.
func (s *Session) End() domain.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.SessionEnded {
		s.state = domain.SessionEnded
		s.current = ""
		s.lastActive = s.now()
	}
	return s.summaryLocked()
}

// ExpireIfIdle ends the session when it has been untouched for longer than
// idleTTL; otherwise the access counts as activity. Reports whether the
// session is (now) ended.
func (s *Session) ExpireIfIdle(idleTTL time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionEnded {
		return true
	}
	if idleTTL > 0 && s.now().Sub(s.lastActive) > idleTTL {
		s.state = domain.SessionEnded
		s.current = ""
		return true
	}
	s.lastActive = s.now()
	return false
}

// Evictable reports whether a sweep may drop the session: ended sessions
// once retention has passed, or sessions idle beyond the TTL.
func (s *Session) Evictable(idleTTL time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idleTTL <= 0 {
		return s.state == domain.SessionEnded
	}
	return s.now().Sub(s.lastActive) > idleTTL
}
