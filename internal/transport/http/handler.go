package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/identity"
)

// TokenIssuer signs credentials for authenticated subjects.
type TokenIssuer interface {
	Issue(subjectID string) (string, error)
}

// Handler binds the identity and trivia use cases to REST endpoints.
type Handler struct {
	identities *identity.Service
	tokens     TokenIssuer
	engine     *app.Engine
}

func NewHandler(identities *identity.Service, tokens TokenIssuer, engine *app.Engine) *Handler {
	return &Handler{identities: identities, tokens: tokens, engine: engine}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string `json:"token"`
	SubjectID string `json:"subjectId"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

type answerRequest struct {
	SessionID   string `json:"sessionId"`
	QuestionID  string `json:"questionId"`
	ChoiceIndex int    `json:"choiceIndex"`
}

type answerResponse struct {
	Correct       bool   `json:"correct"`
	CorrectIndex  int    `json:"correctIndex"`
	CorrectAnswer string `json:"correctAnswer"`
	NewScore      int    `json:"newScore"`
	Replayed      bool   `json:"replayed,omitempty"`
}

type endRequest struct {
	SessionID string `json:"sessionId"`
}

type endResponse struct {
	Score int  `json:"score"`
	Ended bool `json:"ended"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register attaches all REST routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/session", h.handleStartSession)
	mux.HandleFunc("/trivia/next", h.handleNextQuestion)
	mux.HandleFunc("/trivia/answer", h.handleSubmitAnswer)
	mux.HandleFunc("/trivia/end", h.handleEndSession)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	subjectID, err := h.identities.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.tokens.Issue(subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, SubjectID: subjectID})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	subjectID, err := h.identities.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.tokens.Issue(subjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, SubjectID: subjectID})
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	summary, err := h.engine.StartSession(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: summary.SessionID})
}

func (h *Handler) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	view, err := h.engine.GetNextQuestion(r.Context(), bearerToken(r), r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	outcome, err := h.engine.SubmitAnswer(r.Context(), bearerToken(r), req.SessionID, req.QuestionID, req.ChoiceIndex)
	if errors.Is(err, domain.ErrStaleQuestion) && outcome.Replayed {
		// The question was already graded; repeat the recorded verdict.
		writeJSON(w, http.StatusConflict, toAnswerResponse(outcome))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnswerResponse(outcome))
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	summary, err := h.engine.EndSession(r.Context(), bearerToken(r), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, endResponse{Score: summary.Score, Ended: summary.State == domain.SessionEnded})
}

func toAnswerResponse(outcome domain.AnswerOutcome) answerResponse {
	return answerResponse{
		Correct:       outcome.Correct,
		CorrectIndex:  outcome.CorrectIndex,
		CorrectAnswer: outcome.CorrectAnswer,
		NewScore:      outcome.NewScore,
		Replayed:      outcome.Replayed,
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIdentityTaken),
		errors.Is(err, domain.ErrSessionEnded),
		errors.Is(err, domain.ErrStaleQuestion):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoQuestionsAvailable), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
