package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/uzswlu/campus-iam/internal/infra/telemetry"
)

// Metrics instruments every request with the platform's HTTP collectors.
func Metrics(m *telemetry.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		m.HTTPRequestsTotal.With(prometheus.Labels{
			"method": c.Request.Method,
			"path":   route,
			"status": strconv.Itoa(c.Writer.Status()),
		}).Inc()

		m.HTTPDuration.With(prometheus.Labels{
			"method": c.Request.Method,
			"path":   route,
		}).Observe(time.Since(start).Seconds())
	}
}
