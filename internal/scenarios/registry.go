package scenarios

import "mcpconformance-go/internal/harness"

// NewRegistry assembles the full scenario catalog in its canonical order:
// core smoke tests first, then the authorization flows, then the grant
// extensions.
func NewRegistry() (*harness.Registry, error) {
	return harness.NewRegistry(
		coreInitialize(),
		coreToolsList(),
		coreToolsCall(),

		basicDCR(),
		prmRoot(),
		prmCustomPath(),
		metadataOpenIDAlias(),
		metadataTenantPath(),
		pkceS256(),
		scopeChallenge(),
		scopePRMFallback(),
		scopeOmitted(),
		scopeStepUp(),
		scopeRetryLimit(),
		resourceParameter(),
		resourceMismatch(),

		clientCredentials(),
		jwtBearer(),
		tokenExchange(),
	)
}
