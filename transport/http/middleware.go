package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs every request at debug level
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// ChannelMiddleware rejects malformed channel names
func ChannelMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !channelName.MatchString(c.Param("channel")) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid channel"})
			return
		}

		c.Next()
	}
}
