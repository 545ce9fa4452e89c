package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/auth"
)

const contextKeyClient = "client_context"

// requireSession resolves the bearer token (or ?token= for WebSocket upgrades) to a live
// client context. A valid token whose context was logged out or evicted is rejected
// with SESSION_INVALIDATED.
func requireSession(tokens *auth.Tokens, sessions *app.ClientSessions, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			fail(c, http.StatusUnauthorized, ErrTokenRequired, nil)
			return
		}
		handle, err := tokens.Parse(raw)
		if err != nil {
			fail(c, http.StatusUnauthorized, ErrSessionInvalidated, nil)
			return
		}
		cc, err := sessions.Context(c.Request.Context(), handle.SessionID)
		if err != nil {
			writeError(c, log, err)
			return
		}
		if cc.AccountID != handle.AccountID {
			fail(c, http.StatusUnauthorized, ErrSessionInvalidated, nil)
			return
		}
		c.Set(contextKeyClient, cc)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

var errNoClientContext = errors.New("client context missing from request")

func clientContext(c *gin.Context) (app.ClientContext, error) {
	v, ok := c.Get(contextKeyClient)
	if !ok {
		return app.ClientContext{}, errNoClientContext
	}
	cc, ok := v.(app.ClientContext)
	if !ok {
		return app.ClientContext{}, errNoClientContext
	}
	return cc, nil
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		status := c.Writer.Status()
		event := log.Debug()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("request_id", c.GetString(contextKeyRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Msg("request")
	}
}
