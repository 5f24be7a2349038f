package dispatch

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/gofast/pkg/metrics"
)

// requestLogger logs every request and records request metrics
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path).Observe(elapsed.Seconds())

		// health checks and scrapes are frequent
		event := s.logger.Debug()
		if path == "/metrics" || path == "/health" || path == "/ready" || path == "/live" {
			event = s.logger.Trace()
		}
		if status >= 500 {
			event = s.logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Str("worker", workerAddress(c.Request)).
			Dur("elapsed", elapsed).
			Msg("Request handled")
	}
}
