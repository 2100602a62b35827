package scenarios

import (
	"context"
	"fmt"

	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockresource"
)

// coreSmoke builds one unauthenticated smoke scenario asserting that the
// client issued the given JSON-RPC method against the MCP endpoint.
func coreSmoke(name, description, method, checkID string) harness.Definition {
	return harness.Definition{
		Name:           name,
		Description:    description,
		Suites:         []string{harness.SuiteCore, harness.SuiteActive},
		ExpectedChecks: []string{checkID},
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			rs, err := startResourceOnly(ctx, env, mockresource.Options{})
			if err != nil {
				return nil, err
			}
			env.SetStash(rs)
			return &harness.ScenarioURLs{ServerURL: rs.MCPURL()}, nil
		},
		Finalize: func(env *harness.Env) {
			rs, _ := env.Stash().(*mockresource.Server)
			if rs == nil {
				return
			}
			for _, m := range rs.MCPMethods() {
				if m == method {
					env.Ledger.Append(checks.Success(
						checkID,
						"MCP "+method,
						fmt.Sprintf("client issued %s against the MCP endpoint", method),
					))
					return
				}
			}
			env.Ledger.Append(checks.Failure(
				checkID,
				"MCP "+method,
				fmt.Sprintf("a %s request at the MCP endpoint", method),
				fmt.Sprintf("methods observed: %v", rs.MCPMethods()),
			))
		},
	}
}

func coreInitialize() harness.Definition {
	return coreSmoke("core/initialize",
		"Client opens an MCP session with initialize over streamable HTTP.",
		"initialize", CheckMCPInitialize)
}

func coreToolsList() harness.Definition {
	return coreSmoke("core/tools-list",
		"Client lists the server's tools.",
		"tools/list", CheckMCPToolsList)
}

func coreToolsCall() harness.Definition {
	return coreSmoke("core/tools-call",
		"Client calls the echo tool.",
		"tools/call", CheckMCPToolsCall)
}
