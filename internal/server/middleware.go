package server

import (
	"time"

	"github.com/gin-gonic/gin"

	obsmetrics "github.com/fieldpulse/repboard/internal/observability/metrics"
)

// MetricsMiddleware records request counts and latency per route. Unmatched
// routes carry an empty FullPath and are skipped to keep label cardinality
// bounded.
func MetricsMiddleware(m *obsmetrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
