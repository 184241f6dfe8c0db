package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// requestLogger logs every request once it has been served.
func requestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.Error(ctx, "request completed", attrs...)
		case status >= 400:
			log.Warn(ctx, "request completed", attrs...)
		default:
			log.Debug(ctx, "request completed", attrs...)
		}
	}
}

// deviceAuth accepts "Authorization: Bearer <device token>" and stores the
// resolved principal on the gin context.
func deviceAuth(tokens tokenSvc) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}
		p, err := tokens.Authenticate(parts[1], c.GetHeader("X-Device-ID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principalOf(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		return v.(auth.Principal)
	}
	return auth.Principal{}
}
