package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"training-portal/internal/docstore"
)

func dialSession(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/v1/session?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

// readUntil skips heartbeat messages until one of another type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		typ, _ := readNext(t, conn)
		if typ == want {
			return
		}
		if typ != "heartbeat" {
			t.Fatalf("expected %s, got %s", want, typ)
		}
	}
	t.Fatalf("never received %s", want)
}

func TestSessionStreamHeartbeatsAndEviction(t *testing.T) {
	env := newTestEnv(t, 10*time.Millisecond)
	token := env.login(t)
	conn := dialSession(t, env, token)

	typ, payload := readNext(t, conn)
	if typ != "heartbeat" || payload["status"] != "refreshed" {
		t.Fatalf("expected refreshed heartbeat, got %s %v", typ, payload)
	}

	_ = env.docs.Set(context.Background(), docstore.Doc("company", "acme", "session", "active"), docstore.Fields{
		"sessionId":    "rival",
		"lastActiveAt": docstore.ServerTimestamp,
	})
	readUntil(t, conn, "evicted")

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected a normal close after eviction, got %v", err)
	}
	if status, _ := env.do(t, http.MethodGet, "/api/v1/me", token, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected evicted context removed, got %d", status)
	}
}

func TestSessionStreamEndsOnLogout(t *testing.T) {
	// The next heartbeat tick is an hour away, so only the logout itself can end the stream.
	env := newTestEnv(t, time.Hour)
	token := env.login(t)
	conn := dialSession(t, env, token)

	if typ, _ := readNext(t, conn); typ != "heartbeat" {
		t.Fatalf("expected heartbeat first, got %s", typ)
	}
	if status, _ := env.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout: %d", status)
	}
	if typ, _ := readNext(t, conn); typ != "loggedOut" {
		t.Fatalf("expected loggedOut right after logout, got %s", typ)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected a normal close after logout, got %v", err)
	}
}

func TestSessionStreamEndsWhenHeartbeatEndpointSeesEviction(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	token := env.login(t)
	conn := dialSession(t, env, token)

	if typ, _ := readNext(t, conn); typ != "heartbeat" {
		t.Fatalf("expected heartbeat first, got %s", typ)
	}
	_ = env.docs.Set(context.Background(), docstore.Doc("company", "acme", "session", "active"), docstore.Fields{
		"sessionId":    "rival",
		"lastActiveAt": docstore.ServerTimestamp,
	})
	if status, _ := env.do(t, http.MethodPost, "/api/v1/session/heartbeat", token, nil); status != http.StatusUnauthorized {
		t.Fatalf("expected eviction from the heartbeat endpoint, got %d", status)
	}
	if typ, _ := readNext(t, conn); typ != "evicted" {
		t.Fatalf("expected evicted right after the heartbeat call, got %s", typ)
	}
}

func TestSessionStreamRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/v1/session"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}
