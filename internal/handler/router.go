package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRouter wires the HTTP routes. /health is open; everything else
// requires the shared-secret header.
func SetupRouter(h *Handler, apiKey string, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger))

	r.GET("/health", h.Health)

	authed := r.Group("/", APIKeyAuth(apiKey, logger))
	{
		authed.POST("/inbox", h.ReceiveMessage)
		authed.POST("/outbox", h.SendMessage)
		authed.GET("/messages", h.GetHistory)
	}

	return r
}
