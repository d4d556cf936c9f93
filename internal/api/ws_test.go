package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTools(t *testing.T, s *testServer) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/tools", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn, req map[string]any) map[string]any {
	t.Helper()
	require.NoError(t, wsjson.Write(ctx, conn, req))
	var resp map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &resp))
	return resp
}

func TestToolSocketCalls(t *testing.T) {
	s := newTestServer(t, nil)
	conn, ctx := dialTools(t, s)

	resp := roundTrip(t, ctx, conn, map[string]any{"type": "ping", "id": 1})
	assert.Equal(t, "pong", resp["type"])
	assert.EqualValues(t, 1, resp["id"])

	resp = roundTrip(t, ctx, conn, map[string]any{"type": "list"})
	assert.Equal(t, "tools", resp["type"])
	assert.Len(t, resp["result"], 15)

	resp = roundTrip(t, ctx, conn, map[string]any{
		"id":        "a",
		"tool":      "draft_intake",
		"arguments": map[string]any{"message": "Build a tool", "tier_override": "STANDARD"},
	})
	require.Equal(t, "result", resp["type"], resp)
	assert.Equal(t, "a", resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, "STANDARD", result["tier"])

	resp = roundTrip(t, ctx, conn, map[string]any{"tool": "draft_status"})
	require.Equal(t, "result", resp["type"])
	assert.Equal(t, result["session_id"], resp["result"].(map[string]any)["session_id"])

	assert.Equal(t, 1, s.conns.Len())
}

func TestToolSocketErrors(t *testing.T) {
	s := newTestServer(t, nil)
	conn, ctx := dialTools(t, s)

	resp := roundTrip(t, ctx, conn, map[string]any{"tool": "draft_gate"})
	assert.Equal(t, "error", resp["type"])
	assert.Equal(t, "not_found", resp["kind"])

	resp = roundTrip(t, ctx, conn, map[string]any{"tool": "draft_intake", "arguments": map[string]any{"message": "Build a tool"}})
	require.Equal(t, "result", resp["type"])
	resp = roundTrip(t, ctx, conn, map[string]any{"tool": "draft_confirm", "arguments": map[string]any{"field_key": "D1", "value": "ok"}})
	assert.Equal(t, "invalid_input", resp["kind"])
	assert.Equal(t, "D1", resp["field"])
	assert.Equal(t, "REJECTED", resp["status"])

	resp = roundTrip(t, ctx, conn, map[string]any{"tool": "draft_nope"})
	assert.Equal(t, "unknown_tool", resp["kind"])

	resp = roundTrip(t, ctx, conn, map[string]any{"type": "shout"})
	assert.Equal(t, "invalid_input", resp["kind"])
}

func TestToolSocketOrigins(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/tools"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The CORS wildcard does not open the socket to other sites.
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, s.conns.Len())

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {srv.URL}},
	})
	require.NoError(t, err)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestToolSocketExplicitOrigins(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(NewRouter(RouterOptions{
		Service:        s.svc,
		Conns:          s.conns,
		AllowedOrigins: []string{"https://app.example"},
		Version:        "test",
	}))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/tools"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://app.example"}},
	})
	require.NoError(t, err)
	_ = conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://evil.example"}},
	})
	require.Error(t, err)
}

func TestSocketOrigins(t *testing.T) {
	assert.Nil(t, socketOrigins(nil))
	assert.Nil(t, socketOrigins([]string{"*"}))
	assert.Equal(t, []string{"app.example", "localhost:3000", "*.internal"},
		socketOrigins([]string{"https://app.example", "*", "http://localhost:3000", "*.internal"}))
}

func TestConnsCloseAll(t *testing.T) {
	s := newTestServer(t, nil)
	conn, ctx := dialTools(t, s)

	resp := roundTrip(t, ctx, conn, map[string]any{"type": "ping"})
	require.Equal(t, "pong", resp["type"])

	s.conns.CloseAll("shutting down")
	assert.Equal(t, 0, s.conns.Len())

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestListTools(t *testing.T) {
	raw, err := json.Marshal(listTools())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"draft_confirm","title":"Confirm DRAFT Field"`)
	assert.Contains(t, string(raw), `"required":["field_key","value"]`)
}
