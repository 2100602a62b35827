// Package scenarios defines the conformance scenarios: each composes the
// generic mock authorization and resource servers with its own hooks and
// post-hoc validation, behind the harness scenario lifecycle.
package scenarios

import (
	"context"

	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockauth"
	"mcpconformance-go/internal/mockresource"
)

// serverPair is a started authorization server + resource server whose
// cross-references were wired through deferred accessors: the resource
// server's metadata names the authorization server's bound URL, and the
// authorization server's tokens verify against the resource server's
// guard, without either needing the other's address at construction.
type serverPair struct {
	auth     *mockauth.Server
	resource *mockresource.Server

	authLC     *harness.ServerLifecycle
	resourceLC *harness.ServerLifecycle
}

// startPair builds, wires and starts both mock servers. The resource
// server stops first on teardown (reverse registration order) because its
// challenges reference the authorization server.
func startPair(ctx context.Context, env *harness.Env, authOpts mockauth.Options, resOpts mockresource.Options) (*serverPair, error) {
	as, err := mockauth.New(env.Ledger, authOpts, env.Logger)
	if err != nil {
		return nil, err
	}
	if resOpts.Verify == nil {
		resOpts.Verify = as.VerifyAccessToken
	}
	rs := mockresource.New(env.Ledger, resOpts, env.Logger)

	authLC := harness.NewServerLifecycle("authserver", as.Handler(), env.Logger)
	resLC := harness.NewServerLifecycle("resource", rs.Handler(), env.Logger)

	as.BindIssuer(authLC.BaseURL)
	rs.Bind(resLC.BaseURL, func() []string { return []string{as.Issuer()} })

	env.Manage(authLC)
	env.Manage(resLC)

	if err := authLC.Start(ctx); err != nil {
		return nil, err
	}
	if err := resLC.Start(ctx); err != nil {
		return nil, err
	}

	return &serverPair{auth: as, resource: rs, authLC: authLC, resourceLC: resLC}, nil
}

func (p *serverPair) urls(extra map[string]string) *harness.ScenarioURLs {
	ctx := map[string]string{}
	for k, v := range extra {
		ctx[k] = v
	}
	return &harness.ScenarioURLs{ServerURL: p.resource.MCPURL(), Context: ctx}
}

// startResourceOnly starts a lone, unauthenticated resource server for
// the non-auth smoke scenarios.
func startResourceOnly(ctx context.Context, env *harness.Env, resOpts mockresource.Options) (*mockresource.Server, error) {
	resOpts.DisableAuth = true
	rs := mockresource.New(env.Ledger, resOpts, env.Logger)
	lc := harness.NewServerLifecycle("resource", rs.Handler(), env.Logger)
	rs.Bind(lc.BaseURL, func() []string { return nil })
	env.Manage(lc)
	if err := lc.Start(ctx); err != nil {
		return nil, err
	}
	return rs, nil
}
