package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit logs successful administrator actions with the acting user and target.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		actor := ""
		if claims, ok := CurrentSession(c); ok {
			actor = claims.Username
		}
		logger.Info("admin action",
			zap.String("action", action),
			zap.String("actor", actor),
			zap.String("resource_id", c.Param("id")),
			zap.Int("status", status),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.GetHeader("User-Agent")),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
