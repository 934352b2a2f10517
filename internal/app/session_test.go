package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"trivia-service/internal/domain"
)

func TestRecordQuestionServedKeepsPendingQuestion(t *testing.T) {
	session := NewSession("s1", "u1")

	served, err := session.RecordQuestionServed("q1", 3)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if served != "q1" {
		t.Fatalf("expected q1 served, got %s", served)
	}

	// A second record while q1 is pending must not replace it.
	served, err = session.RecordQuestionServed("q2", 3)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if served != "q1" {
		t.Fatalf("expected pending q1 to stand, got %s", served)
	}
	if got := session.CurrentQuestion(); got != "q1" {
		t.Fatalf("expected current q1, got %s", got)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	session := NewSession("s1", "u1")

	for _, id := range []string{"q1", "q2", "q3", "q4"} {
		if _, err := session.RecordQuestionServed(id, 2); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
		if _, err := session.ApplyAnswerOutcome(id, domain.AnswerOutcome{QuestionID: id}); err != nil {
			t.Fatalf("answer %s: %v", id, err)
		}
	}

	history := session.History()
	if len(history) != 2 || history[0] != "q3" || history[1] != "q4" {
		t.Fatalf("expected history [q3 q4], got %v", history)
	}
}

func TestApplyAnswerOutcomeScoresOnce(t *testing.T) {
	session := NewSession("s1", "u1")
	if _, err := session.RecordQuestionServed("q1", 1); err != nil {
		t.Fatalf("record: %v", err)
	}

	outcome, err := session.ApplyAnswerOutcome("q1", domain.AnswerOutcome{QuestionID: "q1", Correct: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if outcome.NewScore != 1 {
		t.Fatalf("expected score 1, got %d", outcome.NewScore)
	}
	if session.CurrentQuestion() != "" {
		t.Fatalf("expected pending slot cleared")
	}

	// Replaying the same question returns the recorded outcome and a stale error.
	replay, err := session.ApplyAnswerOutcome("q1", domain.AnswerOutcome{QuestionID: "q1", Correct: true})
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale question, got %v", err)
	}
	if !replay.Replayed || replay.NewScore != 1 {
		t.Fatalf("expected replayed outcome with score 1, got %+v", replay)
	}
	if session.Summary().Score != 1 {
		t.Fatalf("replay must not change score, got %d", session.Summary().Score)
	}
}

func TestApplyAnswerOutcomeRejectsStaleQuestion(t *testing.T) {
	session := NewSession("s1", "u1")

	// Submitting before any question was served is stale, not a crash.
	if _, err := session.ApplyAnswerOutcome("q9", domain.AnswerOutcome{QuestionID: "q9"}); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale question, got %v", err)
	}

	if _, err := session.RecordQuestionServed("q1", 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := session.ApplyAnswerOutcome("q2", domain.AnswerOutcome{QuestionID: "q2", Correct: true}); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale question for wrong id, got %v", err)
	}
	if session.Summary().Score != 0 {
		t.Fatalf("stale submission must not change score")
	}
}

func TestConcurrentSubmissionsScoreExactlyOnce(t *testing.T) {
	session := NewSession("s1", "u1")
	if _, err := session.RecordQuestionServed("q1", 1); err != nil {
		t.Fatalf("record: %v", err)
	}

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := session.ApplyAnswerOutcome("q1", domain.AnswerOutcome{QuestionID: "q1", Correct: true})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful grading, got %d", succeeded)
	}
	if score := session.Summary().Score; score != 1 {
		t.Fatalf("expected score 1 after concurrent submissions, got %d", score)
	}
}

func TestEndIsIdempotentAndTerminal(t *testing.T) {
	session := NewSession("s1", "u1")
	if _, err := session.RecordQuestionServed("q1", 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := session.ApplyAnswerOutcome("q1", domain.AnswerOutcome{QuestionID: "q1", Correct: true}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	first := session.End()
	second := session.End()
	if first != second {
		t.Fatalf("expected identical end acknowledgements, got %+v vs %+v", first, second)
	}
	if first.State != domain.SessionEnded || first.Score != 1 {
		t.Fatalf("unexpected end summary %+v", first)
	}

	if _, err := session.RecordQuestionServed("q2", 1); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected session ended, got %v", err)
	}
	if _, err := session.ApplyAnswerOutcome("q1", domain.AnswerOutcome{}); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected session ended, got %v", err)
	}
}

func TestExpireIfIdle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	session := NewSessionWithClock("s1", "u1", clock)

	if session.ExpireIfIdle(10 * time.Minute) {
		t.Fatalf("fresh session must not expire")
	}

	now = now.Add(11 * time.Minute)
	if !session.ExpireIfIdle(10 * time.Minute) {
		t.Fatalf("expected idle session to expire")
	}
	if session.Summary().State != domain.SessionEnded {
		t.Fatalf("expected ended state after idle expiry")
	}
}
