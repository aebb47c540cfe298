package middleware

import (
	"errors"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/trackfetch-go/pkg/logger"
)

// Recovery turns a handler panic into a 500 and records it in the error log.
// A client that went away mid-response is logged but not answered.
func Recovery(logAdapter *logger.LoggerAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			err, _ := recovered.(error)
			brokenPipe := err != nil &&
				(errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET))

			logAdapter.LogError("Handler panic",
				zap.Any("panic", recovered),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
				zap.Bool("broken_pipe", brokenPipe),
				zap.Stack("stack"))

			if brokenPipe {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}()
		c.Next()
	}
}
