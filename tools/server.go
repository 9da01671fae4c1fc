package tools

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "tools")

// NewServer returns an MCP server exposing the tools.
func NewServer(name, version string, list ...ITool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	for _, t := range list {
		Register(server, t)
	}
	return server
}

// Register adds the tool to the server.
// Tool failures are returned as error results, not protocol errors.
func Register(server *mcp.Server, t ITool) {
	desc := &mcp.Tool{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Parameters(),
	}
	if IsReadOnly(t) {
		desc.Annotations = &mcp.ToolAnnotations{ReadOnlyHint: true}
	}

	server.AddTool(desc, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input := "{}"
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			input = string(req.Params.Arguments)
		}

		out, err := t.Call(ctx, input)
		if err != nil {
			logger.ContextKV(ctx, xlog.DEBUG, "tool", t.Name(), "err", err.Error())
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	})
}

// InProcess connects the server to an in-memory transport and returns
// the client side of it. The server session ends when ctx is done.
func InProcess(ctx context.Context, server *mcp.Server) (mcp.Transport, error) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to start in-process server")
	}
	go func() {
		<-ctx.Done()
		_ = ss.Close()
	}()
	return clientTransport, nil
}
