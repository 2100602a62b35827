package scenarios

import (
	"context"

	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockauth"
	"mcpconformance-go/internal/mockresource"
)

// resourceParameter verifies RFC 8707: the client must send the canonical
// resource identifier from the metadata document as the resource
// parameter on both the authorization and token requests.
func resourceParameter() harness.Definition {
	return harness.Definition{
		Name:        "auth/resource-parameter",
		Description: "Canonical resource indicator sent on authorization and token requests.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			CheckResourceParameter,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{},
				mockresource.Options{RequiredScopes: []string{"mcp:tools"}},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(nil), nil
		},
		Finalize: func(env *harness.Env) {
			if pair := pairOf(env); pair != nil {
				validateResourceParameter(env, pair)
			}
		},
	}
}

// resourceMismatch advertises a resource identifier belonging to a
// different origin. A conforming client validates the identifier against
// the server it is talking to and abandons the flow, so the client is
// expected to exit non-zero.
func resourceMismatch() harness.Definition {
	return harness.Definition{
		Name:             "auth/resource-mismatch",
		Description:      "Metadata advertises a foreign resource identifier; client must abandon the flow.",
		Suites:           []string{harness.SuiteAuth, harness.SuitePending},
		AllowClientError: true,
		ExpectedChecks: []string{
			mockresource.CheckPRMPathBasedRequested,
			CheckResourceMismatch,
		},
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{},
				mockresource.Options{
					ResourceOverride: "https://other.example.com/mcp",
					RequiredScopes:   []string{"mcp:tools"},
				},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(nil), nil
		},
		Finalize: func(env *harness.Env) {
			if pair := pairOf(env); pair != nil {
				validateResourceMismatch(env, pair)
			}
		},
	}
}
