package scenarios

import (
	"context"

	"github.com/google/uuid"

	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockauth"
	"mcpconformance-go/internal/mockresource"
)

// happyPathChecks is the discovery-to-token chain every authorization
// scenario expects, minus the PRM check that varies by location.
var happyPathChecks = []string{
	mockauth.CheckAuthorizationServerMetadata,
	mockauth.CheckClientRegistration,
	mockauth.CheckAuthorizationRequest,
	mockauth.CheckTokenRequest,
}

func withPRMCheck(prmCheck string, rest ...string) []string {
	out := []string{prmCheck}
	out = append(out, happyPathChecks...)
	return append(out, rest...)
}

// basicDCR is the reference flow: path-based PRM, root metadata, dynamic
// registration, authorization code with PKCE, token exchange.
func basicDCR() harness.Definition {
	return harness.Definition{
		Name:        "auth/basic-dcr",
		Description: "Full authorization flow with dynamic client registration against default discovery locations.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			mockauth.CheckPKCES256,
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
	}
}

// prmRoot moves Protected Resource Metadata to the root well-known
// location; clients must fall back when the path-based form 404s, or
// follow the challenge's resource_metadata URL directly.
func prmRoot() harness.Definition {
	return harness.Definition{
		Name:        "auth/prm-root",
		Description: "Protected resource metadata served only at the root well-known location.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMRootRequested,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{},
				mockresource.Options{
					Location:       mockresource.PRMRoot,
					RequiredScopes: []string{"mcp:tools"},
				},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(nil), nil
		},
	}
}

// prmCustomPath serves metadata at an unguessable path, reachable only
// through the challenge's resource_metadata URL. The conventional
// path-based location is trapped: probing it instead of following the
// challenge records a discovery-priority failure.
func prmCustomPath() harness.Definition {
	customPath := "/.well-known/prm-" + uuid.NewString()
	return harness.Definition{
		Name:        "auth/prm-custom-path",
		Description: "Protected resource metadata reachable only via the challenge's resource_metadata URL.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMCustomRequested,
			mockresource.CheckPRMPriorityOrder,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{},
				mockresource.Options{
					Location:             mockresource.PRMCustomPath,
					CustomPath:           customPath,
					TrapConventionalPath: true,
					RequiredScopes:       []string{"mcp:tools"},
				},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(nil), nil
		},
		Finalize: func(env *harness.Env) {
			// The trap handler records the failure case. Its absence after
			// a completed flow is the success signal.
			if env.Ledger.Observed(mockresource.CheckPRMPriorityOrder) {
				return
			}
			env.Ledger.Append(checks.Success(
				mockresource.CheckPRMPriorityOrder,
				"Discovery priority order",
				"client followed the advertised resource_metadata URL without probing the conventional path",
				checks.RefRFC9728,
			))
		},
	}
}

// metadataOpenIDAlias serves authorization server metadata only at the
// OpenID Connect discovery alias.
func metadataOpenIDAlias() harness.Definition {
	return harness.Definition{
		Name:        "auth/metadata-openid-alias",
		Description: "Authorization server metadata served only at /.well-known/openid-configuration.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{MetadataLocation: mockauth.MetadataOpenIDAlias},
				mockresource.Options{RequiredScopes: []string{"mcp:tools"}},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(nil), nil
		},
	}
}

// metadataTenantPath uses an issuer with a path component, so the
// metadata URL takes the RFC 8414 path-suffix form.
func metadataTenantPath() harness.Definition {
	const tenant = "tenant-a"
	return harness.Definition{
		Name:        "auth/metadata-tenant-path",
		Description: "Issuer with a path component; metadata at the RFC 8414 path-suffix location.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
		),
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			pair, err := startPair(ctx, env,
				mockauth.Options{
					MetadataLocation: mockauth.MetadataTenantPath,
					Tenant:           tenant,
				},
				mockresource.Options{RequiredScopes: []string{"mcp:tools"}},
			)
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(map[string]string{"tenant": tenant}), nil
		},
	}
}

// pkceS256 is the dedicated PKCE scenario: the pkce-s256 check is
// load-bearing here, not incidental.
func pkceS256() harness.Definition {
	return harness.Definition{
		Name:        "auth/pkce-s256",
		Description: "PKCE S256 challenge on the authorization request and matching verifier at the token step.",
		Suites:      []string{harness.SuiteAuth, harness.SuiteActive},
		ExpectedChecks: withPRMCheck(
			mockresource.CheckPRMPathBasedRequested,
			mockauth.CheckPKCES256,
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
	}
}
