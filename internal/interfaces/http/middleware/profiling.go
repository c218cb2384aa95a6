package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/infrastructure/telemetry"
)

// Profiling labels the request goroutine for Pyroscope with the method,
// route pattern and studio. skipPrefixes are left unlabeled.
func Profiling(enabled bool, skipPrefixes ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	labels := map[string]string{
		telemetry.ProfilingLabelMethod: c.Request.Method,
		// route pattern, not the raw path, to keep cardinality low
		telemetry.ProfilingLabelRoute: c.FullPath(),
	}
	if studio := GetStudioID(c); studio != uuid.Nil {
		labels[telemetry.ProfilingLabelStudioID] = studio.String()
	}
	return labels
}
