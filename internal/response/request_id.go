package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKeyRequestID is where the request ID lives on the gin context.
const ContextKeyRequestID = "request_id"

// HeaderRequestID is echoed back so clients can quote it in bug reports.
const HeaderRequestID = "X-Request-ID"

// maxClientRequestID caps IDs supplied by clients before they reach the logs.
const maxClientRequestID = 64

// RequestIDMiddleware tags the request with an ID (the client's, when it sent
// a sane one) and puts a logger carrying that ID in the request context.
// Handlers and services pick it up with zerolog.Ctx.
func RequestIDMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" || len(reqID) > maxClientRequestID {
			reqID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header(HeaderRequestID, reqID)

		reqLog := log.With().
			Str("request_id", reqID).
			Str("route", c.FullPath()).
			Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))
		c.Next()
	}
}
