package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"loan-intake/internal/shared/telemetry"
)

// Context keys handlers set so the request log can report pipeline results.
const (
	DocumentTypeKey = "documentType"
	RecordIDKey     = "recordId"
	ErrorCodeKey    = "errorCode"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		for _, key := range []string{DocumentTypeKey, RecordIDKey, ErrorCodeKey} {
			if v, ok := c.Get(key); ok {
				fields[key] = v
			}
		}
		if status >= http.StatusInternalServerError {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
