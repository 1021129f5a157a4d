package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/keyward/keyward/api"
	"github.com/keyward/keyward/internal/access"
	"github.com/keyward/keyward/internal/logging"
)

func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// DatabaseMiddleware injects a `db` object into the Gin context.
func DatabaseMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(access.ContextKeyDB, db.WithContext(c.Request.Context()))
		c.Next()
	}
}

// dependenciesMiddleware injects the validator and metrics used by the access
// layer into the Gin context.
func (s *Server) dependenciesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(access.ContextKeyValidator, s.validator)
		c.Set(access.ContextKeyActiveKeys, s.activeKeys)
		c.Next()
	}
}

// AuthenticationMiddleware requires the subject header set by the
// authenticating proxy in front of the server. Requests without a subject
// are rejected before reaching a handler.
func AuthenticationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.Request.Header.Get("X-Auth-Subject")
		if subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, &api.Error{
				Method:  c.Request.Method,
				Path:    c.Request.URL.Path,
				Code:    http.StatusUnauthorized,
				Message: "unauthorized",
			})
			return
		}

		c.Set(access.ContextKeySubject, subject)
		c.Next()
	}
}

// recoveryMiddleware turns a handler panic into a 500 response, and forwards
// the panic to the error tracking sink.
func recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				recoverWithSentry(c, err)
				logging.Errorf("panic handling %v %v: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, &api.Error{
					Method:  c.Request.Method,
					Path:    c.Request.URL.Path,
					Code:    http.StatusInternalServerError,
					Message: "internal server error",
				})
			}
		}()

		c.Next()
	}
}
