package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// WSHandler exposes the session operations over a websocket: the client
// sends typed requests and receives typed results on the same connection.
type WSHandler struct {
	engine   *app.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsAnswerPayload struct {
	QuestionID  string `json:"questionId"`
	ChoiceIndex int    `json:"choiceIndex"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and serves next/answer/end requests until the
// client disconnects. The credential and session are fixed per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	credential := r.URL.Query().Get("token")
	if sessionID == "" || credential == "" {
		http.Error(w, "missing sessionId or token", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// A dead writer must not wedge the read loop on a full send buffer.
	trySend := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

readLoop:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "next":
			view, err := h.engine.GetNextQuestion(r.Context(), credential, sessionID)
			if err != nil {
				if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
					break readLoop
				}
				continue
			}
			if !trySend(outboundMessage[any]{Type: "question", Payload: view}) {
				break readLoop
			}
		case "answer":
			var payload wsAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}) {
					break readLoop
				}
				continue
			}
			outcome, err := h.engine.SubmitAnswer(r.Context(), credential, sessionID, payload.QuestionID, payload.ChoiceIndex)
			if err != nil && !(errors.Is(err, domain.ErrStaleQuestion) && outcome.Replayed) {
				if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
					break readLoop
				}
				continue
			}
			if !trySend(outboundMessage[any]{Type: "answerResult", Payload: toAnswerResponse(outcome)}) {
				break readLoop
			}
		case "end":
			summary, err := h.engine.EndSession(r.Context(), credential, sessionID)
			if err != nil {
				if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
					break readLoop
				}
				continue
			}
			if !trySend(outboundMessage[any]{Type: "ended", Payload: endResponse{Score: summary.Score, Ended: summary.State == domain.SessionEnded}}) {
				break readLoop
			}
		default:
			if !trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}) {
				break readLoop
			}
		}
	}

	close(send)
	<-writerDone
}
