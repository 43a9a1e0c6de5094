package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Logging returns a logging middleware for HTTP requests. Health probes are skipped.
func Logging() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/api/health"},
		Formatter: func(params gin.LogFormatterParams) string {
			return fmt.Sprintf("%s %s %s %d %s %s\n",
				params.TimeStamp.Format(time.RFC3339),
				params.Method,
				params.Path,
				params.StatusCode,
				params.Latency.Round(time.Millisecond),
				params.ErrorMessage,
			)
		},
	})
}
