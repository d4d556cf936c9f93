package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/draft-protocol/draftd/internal/config"
	"github.com/draft-protocol/draftd/internal/engine"
	"github.com/draft-protocol/draftd/internal/store"
	"github.com/draft-protocol/draftd/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *tools.Service {
	t.Helper()
	repo, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return tools.NewService(engine.New(repo, nil, engine.Options{}), nil)
}

func callTool(t *testing.T, svc *tools.Service, name string, args map[string]any) (*mcp.CallToolResult, map[string]any) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := handler(svc, name, nil)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return res, body
}

func TestDefinitionSchema(t *testing.T) {
	tool, ok := tools.Lookup("draft_verify")
	require.True(t, ok)

	def := Definition(tool)
	assert.Equal(t, "draft_verify", def.Name)
	assert.Equal(t, "Verify Assumption", def.Annotations.Title)
	require.NotNil(t, def.Annotations.ReadOnlyHint)
	assert.False(t, *def.Annotations.ReadOnlyHint)
	assert.ElementsMatch(t, []string{"assumption_index", "verified"}, def.InputSchema.Required)

	idx, ok := def.InputSchema.Properties["assumption_index"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "number", idx["type"])
	verified, ok := def.InputSchema.Properties["verified"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boolean", verified["type"])
}

func TestHandlerRoundTrip(t *testing.T) {
	svc := newService(t)

	res, body := callTool(t, svc, "draft_intake", map[string]any{"message": "Build a tool", "tier_override": "STANDARD"})
	assert.False(t, res.IsError)
	assert.Equal(t, "STANDARD", body["tier"])
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)

	res, body = callTool(t, svc, "draft_status", map[string]any{})
	assert.False(t, res.IsError)
	assert.Equal(t, id, body["session_id"])

	res, body = callTool(t, svc, "draft_override", map[string]any{"reason": "test"})
	assert.False(t, res.IsError)
	assert.Equal(t, "OVERRIDDEN", body["status"])
}

func TestHandlerReportsErrors(t *testing.T) {
	svc := newService(t)

	res, body := callTool(t, svc, "draft_gate", map[string]any{})
	assert.True(t, res.IsError)
	assert.Equal(t, "not_found", body["kind"])
	assert.Contains(t, body["error"], "No active session")

	res, body = callTool(t, svc, "draft_confirm", map[string]any{"field_key": "D1"})
	assert.True(t, res.IsError)
	assert.Equal(t, "invalid_input", body["kind"])
}

func TestNewRegistersCatalog(t *testing.T) {
	s := New(newService(t), nil)

	raw := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	body, err := json.Marshal(raw)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Len(t, resp.Result.Tools, len(tools.Catalog()))
}

func TestHTTPHandlerRejectsStdio(t *testing.T) {
	s := New(newService(t), nil)

	_, err := HTTPHandler(s, config.TransportStdio, "http://localhost")
	require.Error(t, err)

	h, err := HTTPHandler(s, config.TransportSSE, "http://localhost:8420")
	require.NoError(t, err)
	assert.NotNil(t, h)

	h, err = HTTPHandler(s, config.TransportStreamableHTTP, "")
	require.NoError(t, err)
	assert.NotNil(t, h)
}
