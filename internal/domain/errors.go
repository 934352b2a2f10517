package domain

import "errors"

var (
	// ErrInvalidCredential is returned when a token is missing, expired,
	// malformed, or fails signature verification.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnauthorized is returned when username/secret verification fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrIdentityTaken is returned when registering a username that exists.
	ErrIdentityTaken = errors.New("username is already taken")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned for operations on a terminated session.
	ErrSessionEnded = errors.New("session has ended")
	// ErrStaleQuestion is returned when a submitted question id does not
	// match the session's current question.
	ErrStaleQuestion = errors.New("question is no longer current")
	// ErrNoQuestionsAvailable indicates an empty active question bank.
	ErrNoQuestionsAvailable = errors.New("no active questions available")
	// ErrQuestionNotFound indicates the question bank has no such question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrDataIntegrity indicates corrupted stored content (missing answer
	// key, out-of-range correct index, too few choices). Not retryable.
	ErrDataIntegrity = errors.New("question data integrity failure")
	// ErrInvalidInput is returned for malformed requests such as an
	// out-of-range choice index.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable indicates a transient backing-store failure; the
	// caller may retry.
	ErrStoreUnavailable = errors.New("question store unavailable")
)
