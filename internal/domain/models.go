package domain

import "time"

// Question is a multiple-choice trivia question as stored in the question
// bank. The correct choice lives in a separate AnswerKey so a Question can
// be handed to clients without leaking the answer.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"` // ordered, length >= 2
	Active  bool     `json:"active"`
}

// AnswerKey holds the hidden correct-choice index for a question.
type AnswerKey struct {
	QuestionID   string `json:"questionId"`
	CorrectIndex int    `json:"correctIndex"`
}

// QuestionView is the client-safe projection of a question: identifier,
// prompt and choice texts only.
type QuestionView struct {
	QuestionID string   `json:"questionId"`
	Prompt     string   `json:"prompt"`
	Choices    []string `json:"choices"`
}

// View strips a Question down to what clients may see.
func (q Question) View() QuestionView {
	return QuestionView{QuestionID: q.ID, Prompt: q.Prompt, Choices: q.Choices}
}

// AnswerOutcome is the result of grading one submission. The correct answer
// text is disclosed only through this value, never before a submission.
type AnswerOutcome struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"correct"`
	CorrectIndex  int    `json:"correctIndex"`
	CorrectAnswer string `json:"correctAnswer"`
	NewScore      int    `json:"newScore"`
	Replayed      bool   `json:"replayed,omitempty"` // repeats a prior grading of the same question
}

// SessionState is the lifecycle state of a play-through.
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended" // terminal
)

// SessionSummary is a read-only snapshot of a session, as returned by end
// acknowledgements.
type SessionSummary struct {
	SessionID string       `json:"sessionId"`
	SubjectID string       `json:"subjectId"`
	Score     int          `json:"score"`
	State     SessionState `json:"state"`
}

// Identity is a registered player account. SecretHash is a bcrypt digest and
// must never leave the identity layer.
type Identity struct {
	SubjectID  string
	Username   string
	SecretHash []byte
	CreatedAt  time.Time
}
