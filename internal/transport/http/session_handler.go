package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"training-portal/internal/app"
	"training-portal/internal/auth"
	"training-portal/internal/domain"
)

// SessionHandler serves login, logout and the client context endpoints.
type SessionHandler struct {
	sessions *app.ClientSessions
	tokens   *auth.Tokens
	log      zerolog.Logger
}

func NewSessionHandler(sessions *app.ClientSessions, tokens *auth.Tokens, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

type loginRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	AccountID string            `json:"accountId"`
	Context   app.ClientContext `json:"context"`
}

type learnerRequest struct {
	Name string `json:"name" binding:"required"`
}

type modeRequest struct {
	Mode  string `json:"mode" binding:"required,oneof=practice test"`
	Count string `json:"count"`
}

type heartbeatResponse struct {
	Status app.HeartbeatStatus `json:"status"`
}

// Login POST /api/v1/auth/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	cc, err := h.sessions.Login(c.Request.Context(), req.AccountID, req.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	token, err := h.tokens.Issue(cc.Handle())
	if err != nil {
		h.sessions.Logout(c.Request.Context(), cc.Handle())
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, loginResponse{Token: token, AccountID: cc.AccountID, Context: cc})
}

// Logout POST /api/v1/auth/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.sessions.Logout(c.Request.Context(), cc.Handle())
	success(c, http.StatusOK, gin.H{"loggedOut": true})
}

// Me GET /api/v1/me
func (h *SessionHandler) Me(c *gin.Context) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, cc)
}

// SetLearner PUT /api/v1/learner
func (h *SessionHandler) SetLearner(c *gin.Context) {
	var req learnerRequest
	if !bind(c, &req) {
		return
	}
	h.update(c, func(cc app.ClientContext) (app.ClientContext, error) {
		return h.sessions.SetLearner(c.Request.Context(), cc.SessionID, req.Name)
	})
}

// ClearLearner DELETE /api/v1/learner
func (h *SessionHandler) ClearLearner(c *gin.Context) {
	h.update(c, func(cc app.ClientContext) (app.ClientContext, error) {
		return h.sessions.ClearLearner(c.Request.Context(), cc.SessionID)
	})
}

// SetMode PUT /api/v1/mode
func (h *SessionHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if !bind(c, &req) {
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	count, err := domain.ParseQuestionCount(req.Count)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.update(c, func(cc app.ClientContext) (app.ClientContext, error) {
		return h.sessions.SetMode(c.Request.Context(), cc.SessionID, mode, count)
	})
}

// Heartbeat POST /api/v1/session/heartbeat runs a single heartbeat tick, for clients
// that cannot hold the WebSocket stream open.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	status, err := h.sessions.Heartbeat(c.Request.Context(), cc.SessionID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if status == app.HeartbeatEvicted {
		fail(c, http.StatusUnauthorized, ErrSessionInvalidated, nil)
		return
	}
	success(c, http.StatusOK, heartbeatResponse{Status: status})
}

func (h *SessionHandler) update(c *gin.Context, apply func(app.ClientContext) (app.ClientContext, error)) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	updated, err := apply(cc)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	success(c, http.StatusOK, updated)
}
