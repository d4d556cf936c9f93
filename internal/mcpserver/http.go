package mcpserver

import (
	"fmt"
	"net/http"

	"github.com/draft-protocol/draftd/internal/config"
	"github.com/mark3labs/mcp-go/server"
)

// StreamablePath is where the streamable-http transport is mounted.
const StreamablePath = "/mcp"

// HTTPHandler returns the HTTP handler for a network MCP transport. baseURL
// is the externally visible origin used in SSE endpoint events.
func HTTPHandler(s *server.MCPServer, transport config.Transport, baseURL string) (http.Handler, error) {
	switch transport {
	case config.TransportSSE:
		return server.NewSSEServer(s, server.WithBaseURL(baseURL)), nil
	case config.TransportStreamableHTTP:
		mux := http.NewServeMux()
		mux.Handle(StreamablePath, server.NewStreamableHTTPServer(s, server.WithEndpointPath(StreamablePath)))
		return mux, nil
	default:
		return nil, fmt.Errorf("transport %q is not an HTTP MCP transport", transport)
	}
}
