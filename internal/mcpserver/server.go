// Package mcpserver exposes the governance tool catalog over the Model
// Context Protocol. It only wires; all behavior lives in package tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/draft-protocol/draftd/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New builds an MCP server with every governance tool registered.
func New(svc *tools.Service, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		"DRAFT Protocol Server",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(tools.Instructions),
	)

	for _, t := range tools.Catalog() {
		s.AddTool(Definition(t), handler(svc, t.Name, logger))
	}
	return s
}

// Definition converts a catalog entry into an MCP tool schema.
func Definition(t tools.Tool) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(t.Description),
		mcp.WithTitleAnnotation(t.Title),
		mcp.WithReadOnlyHintAnnotation(t.Hints.ReadOnly),
		mcp.WithDestructiveHintAnnotation(t.Hints.Destructive),
		mcp.WithIdempotentHintAnnotation(t.Hints.Idempotent),
		mcp.WithOpenWorldHintAnnotation(false),
	}

	for _, p := range t.Params {
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			props = append(props, mcp.Required())
		}
		if len(p.Enum) > 0 {
			props = append(props, mcp.Enum(p.Enum...))
		}
		switch p.Type {
		case tools.TypeInteger:
			opts = append(opts, mcp.WithNumber(p.Name, props...))
		case tools.TypeBoolean:
			opts = append(opts, mcp.WithBoolean(p.Name, props...))
		default:
			opts = append(opts, mcp.WithString(p.Name, props...))
		}
	}

	return mcp.NewTool(t.Name, opts...)
}

func handler(svc *tools.Service, name string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := svc.Call(ctx, name, tools.Args(req.GetArguments()))
		if err != nil {
			return errorResult(err), nil
		}
		body, err := json.Marshal(out)
		if err != nil {
			logger.Error("Failed to encode tool result", "tool", name, "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// errorResult reports a tool failure as a structured JSON error payload.
func errorResult(err error) *mcp.CallToolResult {
	body, _ := json.Marshal(tools.ErrorPayload(err))
	return mcp.NewToolResultError(string(body))
}

// ServeStdio runs the server on stdin/stdout until ctx is done. stdout is
// reserved for protocol frames, so the server's own log goes to stderr.
func ServeStdio(ctx context.Context, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(os.Stderr, "mcp: ", log.LstdFlags))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
