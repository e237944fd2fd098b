package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/sitesync/porter/internal/auth"
	"github.com/sitesync/porter/internal/config"
	"github.com/sitesync/porter/internal/logger"
)

const corsMaxAgeHours = 12

// corsMiddleware creates a CORS middleware for the configured origins
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"Authorization", "accept", "origin", "Cache-Control", "X-API-Key",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeHours * time.Hour,
	})
}

// authMiddleware resolves the bearer token (or X-API-Key header) to a
// principal and attaches it to the request context. Requests without a known
// token are rejected before they reach a handler.
func authMiddleware(tokens []config.TokenConfig, log logger.Logger) gin.HandlerFunc {
	principals := make(map[string]auth.Principal, len(tokens))
	for _, t := range tokens {
		principals[t.Token] = auth.NewPrincipal(t.User, t.Capabilities)
	}

	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.GetHeader("X-API-Key")
		}

		principal, ok := principals[token]
		if token == "" || !ok {
			log.Warn("Rejected unauthenticated request",
				logger.String("path", c.Request.URL.Path),
				logger.String("remote_addr", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "missing or unknown API token",
			})
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requestLogger logs one line per request with latency and status
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("Request handled",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		)
	}
}
