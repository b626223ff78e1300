package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/contract-admin/internal/handler"
	apperrors "github.com/jwalitptl/contract-admin/pkg/errors"
)

// ErrorHandler logs errors attached to the context. Handlers normally write
// their own response; when one did not, the last error is rendered here.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			evt := log.Warn()
			if apperrors.StatusOf(e.Err) >= 500 {
				evt = log.Error()
			}
			evt.Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		handler.Error(c, c.Errors.Last().Err)
	}
}
