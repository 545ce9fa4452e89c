package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"training-portal/internal/app"
)

const wsWriteWait = 10 * time.Second

// WSHandler streams heartbeat outcomes of one client session. The connection drives
// the heartbeat loop: it runs while the socket is open and stops on close, eviction,
// or logout.
type WSHandler struct {
	sessions *app.ClientSessions
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(sessions *app.ClientSessions, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type heartbeatPayload struct {
	Status app.HeartbeatStatus `json:"status"`
	At     time.Time           `json:"at"`
}

type reasonPayload struct {
	Reason string `json:"reason"`
}

// SessionStream GET /ws/v1/session?token=...
func (h *WSHandler) SessionStream(c *gin.Context) {
	cc, err := clientContext(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	ended := make(chan app.SessionEnd, 1)
	unwatch := h.sessions.Watch(cc.SessionID, func(reason app.SessionEnd) {
		select {
		case ended <- reason:
		default:
		}
	})
	events := make(chan app.HeartbeatStatus, 4)
	stop := h.sessions.Manager().StartHeartbeat(ctx, cc.Handle(), func(s app.HeartbeatStatus) {
		select {
		case events <- s:
		case <-ctx.Done():
		}
	})
	defer func() {
		unwatch()
		cancel()
		stop()
	}()

	// The client never sends anything meaningful; reading detects the close.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readerDone:
			return
		case <-ctx.Done():
			return
		case reason := <-ended:
			h.end(conn, reason)
			return
		case status := <-events:
			switch status {
			case app.HeartbeatEvicted:
				h.sessions.Evict(ctx, cc.SessionID)
				h.end(conn, app.EndEvicted)
				return
			case app.HeartbeatMissing:
				if _, err := h.sessions.Context(ctx, cc.SessionID); app.IsInvalidated(err) {
					h.end(conn, app.EndLoggedOut)
					return
				}
			}
			if !h.write(conn, outboundMessage[heartbeatPayload]{Type: "heartbeat", Payload: heartbeatPayload{Status: status, At: time.Now().UTC()}}) {
				return
			}
		}
	}
}

// end tells the client why the stream stops and closes it.
func (h *WSHandler) end(conn *websocket.Conn, reason app.SessionEnd) {
	text := "session ended"
	if reason == app.EndEvicted {
		text = "another login took over this account"
	}
	h.write(conn, outboundMessage[reasonPayload]{Type: string(reason), Payload: reasonPayload{Reason: text}})
	h.closeWith(conn, string(reason))
}

func (h *WSHandler) write(conn *websocket.Conn, msg any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug().Err(err).Msg("ws write failed")
		return false
	}
	return true
}

func (h *WSHandler) closeWith(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
