package handler

import (
	"crypto/subtle"
	"time"

	"pairelay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HeaderAPIKey is the credential header checked on authenticated routes.
const HeaderAPIKey = "X-PAI-API-Key"

// APIKeyAuth rejects requests whose credential header does not exactly match
// the configured shared secret.
func APIKeyAuth(apiKey string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderAPIKey)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			logger.Warn().Str("path", c.Request.URL.Path).Msg("authentication failed: invalid API key")
			response.Unauthorized(c, "Invalid API Key")
			return
		}
		c.Next()
	}
}

// RequestLogger logs each request with method, path, status and latency.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Recovery converts handler panics into a 500 instead of killing the process.
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("handler panicked")
				response.ServerError(c, "internal server error")
			}
		}()
		c.Next()
	}
}
