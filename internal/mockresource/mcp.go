package mockresource

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// newMCPServer builds the MCP server behind the bearer guard: one echo
// tool, enough surface for initialize, tools/list and tools/call flows.
func newMCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		"mcp-conformance-resource",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	echoTool := mcp.NewTool("echo",
		mcp.WithDescription("Echoes back the input message"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The message to echo"),
		),
	)
	s.AddTool(echoTool, handleEcho)

	return s
}

func handleEcho(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'message': %v", err)), nil
	}
	return mcp.NewToolResultText("Echo: " + message), nil
}
