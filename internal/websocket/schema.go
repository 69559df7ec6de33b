package websocket

import (
	"encoding/json"
	"time"

	"github.com/stemsi/aptitest-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest submits one answer, or a whole block when QuestionNumber
// is null.
type AnswerRequest struct {
	Action         Action          `json:"action"`
	Phase          string          `json:"phase"`
	QuestionNumber *int            `json:"question_number"`
	Answer         json.RawMessage `json:"answer"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventState        Event = "state"
	EventSession      Event = "session"
	EventAnswerResult Event = "answer_result"
	EventPong         Event = "pong"
)

// StateResponse carries a full session snapshot.
type StateResponse struct {
	Event   Event              `json:"event"`
	Session *model.SessionView `json:"session"`
}

// SessionEventResponse forwards a published session event.
type SessionEventResponse struct {
	Event   Event                  `json:"event"`
	Type    model.SessionEventType `json:"type"`
	Session model.SessionView      `json:"session"`
	At      time.Time              `json:"at"`
}

// AnswerResultResponse acknowledges an answer action.
type AnswerResultResponse struct {
	Event   Event             `json:"event"`
	Result  string            `json:"result"`
	Session model.SessionView `json:"session"`
}

type ErrorResponse struct {
	Event  Event  `json:"event"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error"`
	Action Action `json:"action,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
