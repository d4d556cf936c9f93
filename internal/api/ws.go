package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/draft-protocol/draftd/internal/tools"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// toolRequest is one websocket frame from the client. Type is "call"
// (the default when Tool is set), "list" or "ping".
type toolRequest struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Type      string          `json:"type,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Arguments tools.Args      `json:"arguments,omitempty"`
}

type toolResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Type   string          `json:"type"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Kind   string          `json:"kind,omitempty"`
	Field  string          `json:"field,omitempty"`
	Status string          `json:"status,omitempty"`
}

type toolInfo struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
	ReadOnly    bool     `json:"read_only"`
}

// ToolSocket serves governance tool calls over a websocket, one response per request.
func (h *Handler) ToolSocket(w http.ResponseWriter, r *http.Request) {
	connID := chiMiddleware.GetReqID(r.Context())
	if connID == "" {
		connID = uuid.NewString()
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "conn_id", connID)
		return
	}
	ws.SetReadLimit(MaxBodyBytes)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "bye"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "conn_id", connID)
		}
	}()

	h.conns.Register(connID, ws)
	defer h.conns.Unregister(connID, ws)

	h.logger.Info("Tool socket opened", "conn_id", connID, "ip", r.RemoteAddr)
	h.serveTools(r.Context(), ws, connID)
	h.logger.Info("Tool socket closed", "conn_id", connID)
}

func (h *Handler) serveTools(ctx context.Context, ws *websocket.Conn, connID string) {
	for {
		var req toolRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("WebSocket closed by client", "conn_id", connID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "conn_id", connID)
				_ = wsjson.Write(ctx, ws, toolResponse{Type: "error", Error: "invalid frame", Kind: "invalid_input"})
			}
			return
		}

		if err := wsjson.Write(ctx, ws, h.dispatch(ctx, req)); err != nil {
			h.logger.Debug("WebSocket write error", "error", err, "conn_id", connID)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, req toolRequest) toolResponse {
	switch req.Type {
	case "ping":
		return toolResponse{ID: req.ID, Type: "pong"}
	case "list":
		return toolResponse{ID: req.ID, Type: "tools", Result: listTools()}
	case "", "call":
	default:
		return toolResponse{ID: req.ID, Type: "error", Error: "unknown frame type " + req.Type, Kind: "invalid_input"}
	}

	res, err := h.svc.Call(ctx, req.Tool, req.Arguments)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return toolResponse{ID: req.ID, Type: "result", Result: res}
}

func listTools() []toolInfo {
	catalog := tools.Catalog()
	out := make([]toolInfo, 0, len(catalog))
	for _, t := range catalog {
		info := toolInfo{Name: t.Name, Title: t.Title, Description: t.Description, ReadOnly: t.Hints.ReadOnly}
		for _, p := range t.Params {
			if p.Required {
				info.Required = append(info.Required, p.Name)
			}
		}
		out = append(out, info)
	}
	return out
}

func errorResponse(id json.RawMessage, err error) toolResponse {
	p := tools.ErrorPayload(err)
	resp := toolResponse{ID: id, Type: "error", Error: err.Error(), Kind: tools.ErrorKind(err)}
	resp.Field, _ = p["field"].(string)
	resp.Status, _ = p["status"].(string)
	return resp
}

// socketOrigins turns configured origins into host patterns for the
// websocket handshake. The CORS wildcard is never honoured here.
func socketOrigins(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return patterns
}
