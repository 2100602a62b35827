package scenarios

import (
	"context"

	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockauth"
	"mcpconformance-go/internal/mockresource"
)

// scopeChallenge advertises the required scope in the WWW-Authenticate
// challenge; the client should request exactly that scope.
func scopeChallenge() harness.Definition {
	const scope = "mcp:tools"
	return harness.Definition{
		Name:        "auth/scope-challenge",
		Description: "Required scope advertised via the WWW-Authenticate challenge's scope attribute.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			CheckScopeSelection,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{SupportedScopes: []string{scope, "mcp:other"}},
				mockresource.Options{
					RequiredScopes: []string{scope},
					ChallengeScope: scope,
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
				validateScopeSelection(env, pair, []string{scope}, "the WWW-Authenticate challenge")
			}
		},
	}
}

// scopePRMFallback omits the scope attribute from the challenge; the
// client should fall back to scopes_supported from the resource metadata.
func scopePRMFallback() harness.Definition {
	const scope = "mcp:tools"
	return harness.Definition{
		Name:        "auth/scope-prm-fallback",
		Description: "No scope in the challenge; client falls back to scopes_supported from resource metadata.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			CheckScopeSelection,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{SupportedScopes: []string{scope}},
				mockresource.Options{
					RequiredScopes:  []string{scope},
					ScopesSupported: []string{scope},
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
				validateScopeSelection(env, pair, []string{scope}, "resource metadata scopes_supported")
			}
		},
	}
}

// scopeOmitted advertises no scope anywhere; the client should omit the
// scope parameter rather than invent one.
func scopeOmitted() harness.Definition {
	return harness.Definition{
		Name:        "auth/scope-omitted",
		Description: "No scope advertised anywhere; client omits the scope parameter.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			CheckScopeSelection,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{},
				mockresource.Options{},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(nil), nil
		},
		Finalize: func(env *harness.Env) {
			if pair := pairOf(env); pair != nil {
				validateScopeOmitted(env, pair)
			}
		},
	}
}

// scopeStepUp grants mcp:read initially, then demands mcp:write as well
// for tools/call. The client must re-authorize with a strict superset of
// its first scope set.
func scopeStepUp() harness.Definition {
	return harness.Definition{
		Name:        "auth/scope-step-up",
		Description: "tools/call requires an additional scope; client re-authorizes with a strict superset.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			CheckScopeStepUp,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{SupportedScopes: []string{"mcp:read", "mcp:write"}},
				mockresource.Options{
					RequiredScopes: []string{"mcp:read"},
					ChallengeScope: "mcp:read",
					MethodScopes: map[string][]string{
						"tools/call": {"mcp:read", "mcp:write"},
					},
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
				validateStepUp(env, pair, []string{"mcp:read", "mcp:write"})
			}
		},
	}
}

// scopeRetryLimit denies every authenticated request with an
// unsatisfiable scope. The client must give up within the retry budget,
// so a non-zero client exit is the expected outcome.
func scopeRetryLimit() harness.Definition {
	return harness.Definition{
		Name:             "auth/scope-retry-limit",
		Description:      "Server never grants a sufficient scope; client must stop retrying within the limit.",
		Suites:           []string{harness.SuiteAuth, harness.SuitePending},
		AllowClientError: true,
		ExpectedChecks: []string{
			mockresource.CheckPRMPathBasedRequested,
			mockauth.CheckAuthorizationServerMetadata,
			CheckScopeRetryLimit,
		},
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{},
				mockresource.Options{
					AlwaysDeny: true,
					DenyScope:  "mcp:unobtainable",
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
				validateRetryLimit(env, pair)
			}
		},
	}
}
