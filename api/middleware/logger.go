package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/droplet-predictor/internal/logger"
)

// RequestLogger writes one line per request. Successful requests to
// skipPaths (health checks, for instance) are not logged.
func RequestLogger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		if status < 400 && skip[c.Request.URL.Path] {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		entry := logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
			"status":     status,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      route,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
			"bytes":      c.Writer.Size(),
		})
		if userID := GetUserID(c); userID != 0 {
			entry = entry.WithField("user_id", userID)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("server error")
		case status >= 400:
			entry.Warn("client error")
		default:
			entry.Info("request completed")
		}
	}
}
