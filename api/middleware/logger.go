package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adaptivesql/pooltuner/internal/logger"
)

// RequestLogger emits one structured line per API request, carrying the trace
// ID so console calls line up with the pool activity they caused. Server
// errors log at error level so they surface next to pool faults.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"component":  "api",
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if query != "" {
			fields["query"] = query
		}
		if traceID := GetTraceID(c); traceID != "" {
			fields["trace_id"] = traceID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("API request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("API request rejected")
		default:
			entry.Info("API request served")
		}
	}
}
