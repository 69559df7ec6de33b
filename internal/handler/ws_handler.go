package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/events"
	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
	ws "github.com/stemsi/aptitest-backend/internal/websocket"
)

// EventSubscriber delivers the events of one session.
type EventSubscriber interface {
	Subscribe(ctx context.Context, key model.SessionKey) (*events.Subscription, error)
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events to the test client and accepts answers
// over the same connection.
type WSHandler struct {
	testService *service.TestSessionService
	subscriber  EventSubscriber
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(testService *service.TestSessionService, subscriber EventSubscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		testService: testService,
		subscriber:  subscriber,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// TestStream godoc
// WS /ws/v1/test/stream?token=
// Sends a state snapshot, then every session event. Clients may send
// {"action":"answer",...}, {"action":"state"} and {"action":"ping"}.
func (h *WSHandler) TestStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sc := middleware.GetSurvey(c)

	// Resolve the session before upgrading so a missing login is a plain
	// HTTP error.
	view, err := h.testService.GetState(c.Request.Context(), sc, claims.UserCode)
	if err != nil {
		failService(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	wsLog := h.log.With().
		Str("survey_type", sc.SurveyType).
		Str("user_code", claims.UserCode).
		Logger()
	w := ws.NewWriter(conn)

	sub, err := h.subscriber.Subscribe(ctx, model.NewSessionKey(sc, claims.UserCode))
	if err != nil {
		wsLog.Error().Err(err).Msg("Event subscription failed")
		w.WriteError("", string(response.ErrInternal), "event stream unavailable")
		return
	}
	defer sub.Close()

	w.WriteTyped(ws.StateResponse{Event: ws.EventState, Session: view})
	go h.forward(w, sub, wsLog)

	wsLog.Info().Msg("Test client connected")

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			w.WriteError("", string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, w, wsLog, sc, claims.UserCode, raw)
		case ws.ActionState:
			h.handleState(ctx, w, sc, claims.UserCode)
		case ws.ActionPing:
			w.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			w.WriteError(env.Action, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

// forward writes published events until the subscription closes.
func (h *WSHandler) forward(w *ws.Writer, sub *events.Subscription, wsLog zerolog.Logger) {
	for ev := range sub.Events() {
		err := w.WriteTyped(ws.SessionEventResponse{
			Event:   ws.EventSession,
			Type:    ev.Type,
			Session: ev.Session,
			At:      ev.At,
		})
		if err != nil {
			wsLog.Debug().Err(err).Msg("Event write failed")
			return
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, w *ws.Writer, wsLog zerolog.Logger, sc model.SurveyContext, userCode string, raw json.RawMessage) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		w.WriteError(ws.ActionAnswer, string(response.ErrInvalidPayload), "malformed answer")
		return
	}
	ans, err := model.DecodeAnswer(req.QuestionNumber, req.Answer)
	if err != nil {
		h.writeServiceError(w, wsLog, ws.ActionAnswer, err)
		return
	}
	resp, err := h.testService.SubmitAnswer(ctx, sc, userCode, req.Phase, ans)
	if err != nil {
		h.writeServiceError(w, wsLog, ws.ActionAnswer, err)
		return
	}
	w.WriteTyped(ws.AnswerResultResponse{
		Event:   ws.EventAnswerResult,
		Result:  resp.Result,
		Session: resp.Session,
	})
}

func (h *WSHandler) handleState(ctx context.Context, w *ws.Writer, sc model.SurveyContext, userCode string) {
	view, err := h.testService.GetState(ctx, sc, userCode)
	if err != nil {
		h.writeServiceError(w, h.log, ws.ActionState, err)
		return
	}
	w.WriteTyped(ws.StateResponse{Event: ws.EventState, Session: view})
}

func (h *WSHandler) writeServiceError(w *ws.Writer, wsLog zerolog.Logger, action ws.Action, err error) {
	_, code, exposed := classify(err)
	msg := response.GetMessage(code)
	if exposed {
		msg = err.Error()
	} else {
		wsLog.Error().Err(err).Str("action", string(action)).Msg("Service call failed")
	}
	w.WriteError(action, string(code), msg)
}
