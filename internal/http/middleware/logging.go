// README: Access log middleware on the process zerolog logger; attaches a request-scoped logger to the context.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parkmark/internal/logging"
)

const RequestIDHeader = "X-Request-ID"

func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)

		l := logging.With("http").With().Str("request_id", reqID).Logger()
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), l))

		c.Next()

		ev := l.Info()
		if status := c.Writer.Status(); status >= 500 {
			ev = l.Error()
		} else if status >= 400 {
			ev = l.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("uid", CallerUID(c)).
			Msg("request")
	}
}
