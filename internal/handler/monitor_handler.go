package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptitest-backend/internal/middleware"
	"github.com/stemsi/aptitest-backend/internal/model"
	"github.com/stemsi/aptitest-backend/internal/response"
	"github.com/stemsi/aptitest-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams session events over SSE, for clients that cannot
// hold a WebSocket and for admins watching a test-taker.
type MonitorHandler struct {
	testService *service.TestSessionService
	subscriber  EventSubscriber
	log         zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(testService *service.TestSessionService, subscriber EventSubscriber, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		testService: testService,
		subscriber:  subscriber,
		log:         log.With().Str("component", "monitor_handler").Logger(),
	}
}

// StreamOwnSession godoc
// GET /api/v1/test/events
func (h *MonitorHandler) StreamOwnSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	h.stream(c, claims.UserCode)
}

// MonitorSession godoc
// GET /api/v1/admin/sessions/:user_code/events
func (h *MonitorHandler) MonitorSession(c *gin.Context) {
	h.stream(c, c.Param("user_code"))
}

func (h *MonitorHandler) stream(c *gin.Context, userCode string) {
	reqCtx := c.Request.Context()
	sc := middleware.GetSurvey(c)

	view, err := h.testService.GetState(reqCtx, sc, userCode)
	if err != nil {
		failService(c, err)
		return
	}

	sub, err := h.subscriber.Subscribe(reqCtx, model.NewSessionKey(sc, userCode))
	if err != nil {
		h.log.Error().Err(err).Str("user_code", userCode).Msg("Event subscription failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", gin.H{"session": view})
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Debug().Str("survey_type", sc.SurveyType).Str("user_code", userCode).Msg("SSE stream attached")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Debug().Str("user_code", userCode).Msg("SSE stream detached")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}
