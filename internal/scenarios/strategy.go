package scenarios

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
)

// Check IDs emitted by the post-flow validators. These assert properties
// of the whole recorded flow, so they can only run after the client is
// done.
const (
	CheckScopeSelection        = "scope-selection"
	CheckScopeStepUp           = "scope-step-up"
	CheckScopeRetryLimit       = "scope-retry-limit"
	CheckResourceParameter     = "resource-parameter-match"
	CheckResourceMismatch      = "resource-mismatch-rejected"
	CheckClientCredentialsAuth = "client-credentials-auth"
	CheckJWTBearerAssertion    = "jwt-bearer-assertion"
	CheckTokenExchange         = "token-exchange-subject"
	CheckMCPInitialize         = "mcp-initialize"
	CheckMCPToolsList          = "mcp-tools-list"
	CheckMCPToolsCall          = "mcp-tools-call"
)

// maxScopeRetries is how many denied attempts a client may make before it
// must give up. Endless 403 loops against a server that will never grant
// the scope are the failure mode this guards against.
const maxScopeRetries = 3

// validateScopeSelection checks that the first authorization request
// asked for the scope the server advertised through the given source
// (challenge header or resource metadata). SHOULD-level, so a mismatch
// is a WARNING, not a FAILURE.
func validateScopeSelection(env *harness.Env, pair *serverPair, advertised []string, source string) {
	reqs := pair.auth.AuthorizationRequests()
	if len(reqs) == 0 {
		return
	}
	requested := reqs[0].Scopes()
	if scopeSetsEqual(requested, advertised) {
		env.Ledger.Append(checks.Success(
			CheckScopeSelection,
			"Scope selection",
			fmt.Sprintf("client requested the scope advertised via %s: %q", source, strings.Join(advertised, " ")),
			checks.RefRFC9728, checks.RefMCPAuth,
		))
		return
	}
	env.Ledger.Append(checks.Warning(
		CheckScopeSelection,
		"Scope selection",
		fmt.Sprintf("scope %q as advertised via %s", strings.Join(advertised, " "), source),
		fmt.Sprintf("scope %q", reqs[0].Scope),
		checks.RefRFC9728, checks.RefMCPAuth,
	))
}

// validateScopeOmitted checks the behavior when the server advertises no
// scopes anywhere: omitting the scope parameter is the expected move;
// inventing one is a WARNING.
func validateScopeOmitted(env *harness.Env, pair *serverPair) {
	reqs := pair.auth.AuthorizationRequests()
	if len(reqs) == 0 {
		return
	}
	if reqs[0].Scope == "" {
		env.Ledger.Append(checks.Success(
			CheckScopeSelection,
			"Scope selection",
			"client omitted the scope parameter when no scope was advertised",
			checks.RefOAuth21, checks.RefMCPAuth,
		))
		return
	}
	env.Ledger.Append(checks.Warning(
		CheckScopeSelection,
		"Scope selection",
		"no scope parameter, since the server advertised none",
		fmt.Sprintf("invented scope %q", reqs[0].Scope),
		checks.RefOAuth21, checks.RefMCPAuth,
	))
}

// validateStepUp checks that a later authorization request asked for a
// strict superset of an earlier one's scopes that also covers everything
// the challenge demanded. A client that re-authorizes with only the new
// scope loses the old grant; one that pads the request with an unrelated
// scope never satisfies the challenge; one that never re-authorizes
// cannot step up at all.
func validateStepUp(env *harness.Env, pair *serverPair, demanded []string) {
	reqs := pair.auth.AuthorizationRequests()
	if len(reqs) < 2 {
		env.Ledger.Append(checks.Failure(
			CheckScopeStepUp,
			"Scope step-up",
			"a second authorization request after the insufficient_scope challenge",
			fmt.Sprintf("%d authorization request(s)", len(reqs)),
			checks.RefRFC6750, checks.RefMCPAuth,
		))
		return
	}

	first := reqs[0].Scopes()
	for _, later := range reqs[1:] {
		if stepUpSatisfied(later.Scopes(), first, demanded) {
			env.Ledger.Append(checks.Success(
				CheckScopeStepUp,
				"Scope step-up",
				fmt.Sprintf("request #%d asked for %q, widening the initial %q to cover the demanded %q",
					later.Ordinal, later.Scope, reqs[0].Scope, strings.Join(demanded, " ")),
				checks.RefRFC6750, checks.RefMCPAuth,
			))
			return
		}
	}
	last := reqs[len(reqs)-1]
	env.Ledger.Append(checks.Failure(
		CheckScopeStepUp,
		"Scope step-up",
		fmt.Sprintf("a later authorization request widening the initial scope %q to cover %q",
			reqs[0].Scope, strings.Join(demanded, " ")),
		fmt.Sprintf("final request #%d asked for %q", last.Ordinal, last.Scope),
		checks.RefRFC6750, checks.RefMCPAuth,
	))
}

// stepUpSatisfied reports whether got widens base and includes every
// demanded scope. Widening alone is not enough.
func stepUpSatisfied(got, base, demanded []string) bool {
	if !isStrictSuperset(got, base) {
		return false
	}
	have := make(map[string]bool, len(got))
	for _, s := range got {
		have[s] = true
	}
	for _, s := range demanded {
		if !have[s] {
			return false
		}
	}
	return true
}

// validateRetryLimit checks that the client attempted the flow at least
// once and gave up within the retry budget against a server that denies
// every token.
func validateRetryLimit(env *harness.Env, pair *serverPair) {
	attempts := pair.auth.AuthorizationAttempts()
	switch {
	case attempts == 0:
		env.Ledger.Append(checks.Failure(
			CheckScopeRetryLimit,
			"Scope retry limit",
			"at least one authorization attempt",
			"no authorization requests",
			checks.RefMCPAuth,
		))
	case attempts > maxScopeRetries:
		env.Ledger.Append(checks.Failure(
			CheckScopeRetryLimit,
			"Scope retry limit",
			fmt.Sprintf("at most %d authorization attempts against a server that never grants the scope", maxScopeRetries),
			fmt.Sprintf("%d attempts", attempts),
			checks.RefMCPAuth,
		))
	default:
		env.Ledger.Append(checks.Success(
			CheckScopeRetryLimit,
			"Scope retry limit",
			fmt.Sprintf("client stopped after %d attempt(s) once insufficient_scope proved unsatisfiable", attempts),
			checks.RefMCPAuth,
		))
	}
}

// validateResourceParameter checks that every authorization and token
// request carried a resource parameter matching the canonical resource
// identifier from the metadata document.
func validateResourceParameter(env *harness.Env, pair *serverPair) {
	canonical := pair.resource.Resource()

	var observed []string
	for _, r := range pair.auth.AuthorizationRequests() {
		observed = append(observed, r.Resource)
	}
	for _, r := range pair.auth.TokenRequests() {
		observed = append(observed, r.Resource)
	}
	if len(observed) == 0 {
		return
	}

	for _, res := range observed {
		if !sameCanonicalURI(res, canonical) {
			env.Ledger.Append(checks.Failure(
				CheckResourceParameter,
				"Resource indicator",
				fmt.Sprintf("resource parameter %q on every authorization and token request", canonical),
				fmt.Sprintf("resource parameter %q", res),
				checks.RefRFC8707, checks.RefMCPAuth,
			))
			return
		}
	}
	env.Ledger.Append(checks.Success(
		CheckResourceParameter,
		"Resource indicator",
		fmt.Sprintf("all %d request(s) carried the canonical resource %q", len(observed), canonical),
		checks.RefRFC8707, checks.RefMCPAuth,
	))
}

// validateResourceMismatch is the negative counterpart: the metadata
// advertises a resource the client is not talking to, so a conforming
// client must abandon the flow before authorization.
func validateResourceMismatch(env *harness.Env, pair *serverPair) {
	attempts := pair.auth.AuthorizationAttempts()
	if attempts == 0 {
		env.Ledger.Append(checks.Success(
			CheckResourceMismatch,
			"Resource mismatch rejected",
			fmt.Sprintf("client refused to authorize against a server whose metadata claims the foreign resource %q",
				pair.resource.Resource()),
			checks.RefRFC9728, checks.RefMCPAuth,
		))
		return
	}
	env.Ledger.Append(checks.Failure(
		CheckResourceMismatch,
		"Resource mismatch rejected",
		"no authorization attempts after the resource identifier failed validation",
		fmt.Sprintf("%d authorization attempt(s)", attempts),
		checks.RefRFC9728, checks.RefMCPAuth,
	))
}

// pairOf pulls the serverPair stashed by the Setup closure.
func pairOf(env *harness.Env) *serverPair {
	p, _ := env.Stash().(*serverPair)
	return p
}

func scopeSetsEqual(a, b []string) bool {
	return strings.Join(sortedScopes(a), " ") == strings.Join(sortedScopes(b), " ")
}

// isStrictSuperset reports whether got contains every scope in base plus
// at least one more.
func isStrictSuperset(got, base []string) bool {
	if len(got) <= len(base) {
		return false
	}
	have := make(map[string]bool, len(got))
	for _, s := range got {
		have[s] = true
	}
	for _, s := range base {
		if !have[s] {
			return false
		}
	}
	return true
}

func sortedScopes(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// sameCanonicalURI compares two resource identifiers after RFC 8707
// canonicalization: lowercase scheme and host, default ports elided, no
// trailing slash on an empty path.
func sameCanonicalURI(a, b string) bool {
	return canonicalURI(a) == canonicalURI(b)
}

func canonicalURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
