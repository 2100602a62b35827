package refclient

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"mcpconformance-go/internal/checks"
)

// runSession opens an MCP session over streamable HTTP and exercises the
// basic surface: initialize, tools/list, tools/call on the echo tool.
func (c *Client) runSession(ctx context.Context, serverURL, token string) error {
	err := c.doSession(ctx, serverURL, token)
	if err != nil {
		c.record(checks.Failure(CheckServerMCPSession,
			"MCP session",
			"a working initialize, tools/list and tools/call sequence",
			err.Error(),
			checks.RefMCPAuth))
	}
	return err
}

func (c *Client) doSession(ctx context.Context, serverURL, token string) error {
	var opts []transport.StreamableHTTPCOption
	if token != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}))
	}
	httpTransport, err := transport.NewStreamableHTTP(serverURL, opts...)
	if err != nil {
		return fmt.Errorf("failed to create HTTP transport: %w", err)
	}

	mcpClient := client.NewClient(httpTransport)
	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}
	defer mcpClient.Close()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "mcpconformance-refclient",
		Version: "1.0.0",
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	serverInfo, err := mcpClient.Initialize(ctx, initRequest)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	c.logger.Debug("session initialized",
		zap.String("server_name", serverInfo.ServerInfo.Name),
		zap.String("protocol_version", serverInfo.ProtocolVersion))

	toolsResult, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}
	if len(toolsResult.Tools) == 0 {
		return fmt.Errorf("server advertises no tools")
	}

	callRequest := mcp.CallToolRequest{}
	callRequest.Params.Name = toolsResult.Tools[0].Name
	callRequest.Params.Arguments = map[string]any{"message": "conformance probe"}

	result, err := mcpClient.CallTool(ctx, callRequest)
	if err != nil {
		return fmt.Errorf("tools/call failed: %w", err)
	}
	if result.IsError {
		return fmt.Errorf("tool call returned an error result")
	}

	c.logger.Debug("session complete", zap.Int("tools", len(toolsResult.Tools)))
	c.record(checks.Success(CheckServerMCPSession,
		"MCP session",
		fmt.Sprintf("initialize, tools/list and tools/call succeeded against %q", serverInfo.ServerInfo.Name),
		checks.RefMCPAuth))
	return nil
}
