package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/mops-planner-api/internal/service"
)

// unmatchedRoute labels requests that hit no route, keeping raw paths out of
// the metric label set.
const unmatchedRoute = "unmatched"

// Metrics records duration and status of every request against its route template.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
