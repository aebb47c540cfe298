package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/trackfetch-go/pkg/logger"
	"go.uber.org/zap"
)

// Logger returns a gin middleware that writes one access log line per request.
// Server errors are also recorded in the error category.
func Logger(logAdapter *logger.LoggerAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		switch {
		case statusCode >= 500:
			logAdapter.LogError("HTTP error response", fields...)
		case statusCode >= 400:
			logAdapter.General().Warn("HTTP request", fields...)
		default:
			logAdapter.General().Debug("HTTP request", fields...)
		}
	}
}
