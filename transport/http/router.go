package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter sets up the Gin router
func SetupRouter(relay *Relay, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Create handlers
	handlers := NewRelayHandlers(relay)

	// Channel routes
	channels := router.Group("/")
	channels.Use(ChannelMiddleware())
	{
		channels.GET("/:channel", handlers.Listen)
		channels.POST("/:channel", handlers.Deliver)
	}

	return router
}
