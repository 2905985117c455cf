package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const userContextKey = "user"

// CORSMiddleware handles CORS for the Chrome extension and the web client
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if isAllowedOrigin(origin, allowedOrigins) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, PATCH, DELETE")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Max-Age", "3600")
		}

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// isAllowedOrigin checks if the origin is in the allowed list
func isAllowedOrigin(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range allowedOrigins {
		// Support wildcard matching for chrome-extension://*
		if strings.HasSuffix(allowed, "*") {
			if strings.HasPrefix(origin, strings.TrimSuffix(allowed, "*")) {
				return true
			}
		} else if origin == allowed {
			return true
		}
	}
	return false
}

// LoggerMiddleware writes one structured log line per request
func LoggerMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// MetricsMiddleware counts requests and observes their latency. Paths are
// labelled by route template to keep label cardinality bounded.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// RecoveryMiddleware recovers from panics
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.Recovery()
}

// SessionBinder keeps the dashboard's alert state on the session's user
type SessionBinder interface {
	User() *domain.User
	SetIdentity(ctx context.Context, user *domain.User) error
}

// AuthMiddleware resolves the bearer token into a user, binds the dashboard
// state to that user and attaches the user to the request context
func AuthMiddleware(identity domain.IdentityBackend, sessions SessionBinder, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c.Request)
		if tok == "" {
			respondError(c, domain.ErrNotAuthenticated)
			c.Abort()
			return
		}

		user, err := identity.VerifyToken(c.Request.Context(), tok)
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}

		if current := sessions.User(); current == nil || current.ID != user.ID {
			if err := sessions.SetIdentity(c.Request.Context(), user); err != nil {
				// the store keeps the load error; handlers report it
				logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to load alerts for session")
			}
		}

		c.Set(userContextKey, user)
		c.Request = c.Request.WithContext(domain.ContextWithUser(c.Request.Context(), user))
		c.Next()
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, tok, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	// browsers cannot set headers on websocket upgrades
	if r.Header.Get("Upgrade") != "" {
		return r.URL.Query().Get("token")
	}
	return ""
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}
