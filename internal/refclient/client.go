package refclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcpconformance-go/internal/checks"
)

// Check IDs emitted when the client runs with a ledger attached, grading
// a live server's side of the flow.
const (
	CheckServerChallenge     = "server-unauthenticated-challenge"
	CheckServerPRM           = "server-resource-metadata"
	CheckServerResourceMatch = "server-resource-identifier"
	CheckServerASMetadata    = "server-authserver-metadata"
	CheckServerTokenIssued   = "server-token-issued"
	CheckServerMCPSession    = "server-mcp-session"
)

// maxAuthorizationAttempts bounds how often the client re-authorizes in
// response to insufficient_scope before giving up.
const maxAuthorizationAttempts = 3

const requestTimeout = 10 * time.Second

// Client is the reference conformance client. One instance runs one flow
// against one scenario endpoint.
type Client struct {
	http    *http.Client
	logger  *zap.Logger
	context map[string]string

	// ledger, when set, receives a check per flow step so the client can
	// grade a live server instead of being the subject under test.
	ledger *checks.Ledger
}

// New builds a client. The context bag carries scenario-provided
// out-of-band material (pre-provisioned credentials, assertion keys,
// subject tokens).
func New(logger *zap.Logger, scenarioContext map[string]string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: requestTimeout,
			// Authorization redirects are captured, not followed: the
			// redirect URI is never a live listener.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.Named("refclient"),
		context: scenarioContext,
	}
}

// SetLedger attaches a check ledger; each flow step then records a
// check. Used by server grading, where the mock servers' checks do not
// exist.
func (c *Client) SetLedger(l *checks.Ledger) {
	c.ledger = l
}

func (c *Client) record(check checks.Check) {
	if c.ledger != nil {
		c.ledger.Append(check)
	}
}

// Run executes the full flow against the given MCP endpoint: discovery,
// token acquisition, scope step-up as needed, then an MCP session.
func (c *Client) Run(ctx context.Context, serverURL string) error {
	status, wwwAuth, err := c.probe(ctx, serverURL, "initialize", "")
	if err != nil {
		return fmt.Errorf("initial probe failed: %w", err)
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		c.logger.Debug("endpoint requires no authorization")
		c.record(checks.Info(CheckServerChallenge,
			"Unauthenticated challenge",
			fmt.Sprintf("endpoint answered %d without requiring authorization", status),
			checks.RefRFC6750))
		return c.runSession(ctx, serverURL, "")
	}

	ch := ParseChallenge(wwwAuth)
	if ch.ResourceMetadata == "" {
		c.record(checks.Warning(CheckServerChallenge,
			"Unauthenticated challenge",
			"a WWW-Authenticate challenge with a resource_metadata URL",
			fmt.Sprintf("status %d with header %q", status, wwwAuth),
			checks.RefRFC9728, checks.RefRFC6750))
	} else {
		c.record(checks.Success(CheckServerChallenge,
			"Unauthenticated challenge",
			"401 challenge carries a resource_metadata URL",
			checks.RefRFC9728, checks.RefRFC6750))
	}

	prm, err := c.discoverPRM(ctx, serverURL, ch)
	if err != nil {
		c.record(checks.Failure(CheckServerPRM,
			"Protected resource metadata",
			"a reachable RFC 9728 metadata document",
			err.Error(),
			checks.RefRFC9728))
		return err
	}
	c.record(checks.Success(CheckServerPRM,
		"Protected resource metadata",
		"metadata document fetched and parsed",
		checks.RefRFC9728))

	// The advertised resource identifier must name the server we are
	// actually talking to. A mismatch means tokens would be audience-bound
	// to someone else, so the flow stops here.
	if canonicalResource(prm.Resource) != canonicalResource(serverURL) {
		c.record(checks.Failure(CheckServerResourceMatch,
			"Resource identifier",
			fmt.Sprintf("resource identifier matching %q", serverURL),
			fmt.Sprintf("resource %q", prm.Resource),
			checks.RefRFC9728, checks.RefRFC8707))
		return fmt.Errorf("resource identifier %q does not match server %q; refusing to authorize",
			prm.Resource, serverURL)
	}
	c.record(checks.Success(CheckServerResourceMatch,
		"Resource identifier",
		"advertised resource matches the endpoint under test",
		checks.RefRFC9728, checks.RefRFC8707))
	if len(prm.AuthorizationServers) == 0 {
		return fmt.Errorf("resource metadata names no authorization servers")
	}

	md, err := c.discoverServerMetadata(ctx, prm.AuthorizationServers[0])
	if err != nil {
		c.record(checks.Failure(CheckServerASMetadata,
			"Authorization server metadata",
			"a reachable RFC 8414 metadata document",
			err.Error(),
			checks.RefRFC8414))
		return err
	}
	c.record(checks.Success(CheckServerASMetadata,
		"Authorization server metadata",
		"metadata document fetched from "+prm.AuthorizationServers[0],
		checks.RefRFC8414))

	scopes := c.selectScopes(ch, prm)
	session := &flowState{prm: prm, md: md, scopes: scopes}

	token, err := c.acquireToken(ctx, session)
	if err != nil {
		c.record(checks.Failure(CheckServerTokenIssued,
			"Token issuance",
			"an access token from the token endpoint",
			err.Error(),
			checks.RefOAuth21))
		return err
	}
	c.record(checks.Success(CheckServerTokenIssued,
		"Token issuance",
		"access token obtained",
		checks.RefOAuth21))

	// Scope step-up loop: re-acquire with the broader scope a 403
	// advertises, until granted or the attempt budget runs out.
	for {
		status, wwwAuth, err = c.probe(ctx, serverURL, "tools/call", token)
		if err != nil {
			return fmt.Errorf("authorized probe failed: %w", err)
		}
		if status != http.StatusForbidden && status != http.StatusUnauthorized {
			break
		}

		denied := ParseChallenge(wwwAuth)
		widened := unionScopes(session.scopes, strings.Fields(denied.Scope))
		if scopeKey(widened) == scopeKey(session.scopes) {
			return fmt.Errorf("access denied with no broader scope to request (scope %q)", denied.Scope)
		}
		if session.attempts >= maxAuthorizationAttempts {
			return fmt.Errorf("access still denied after %d authorization attempts", session.attempts)
		}
		session.scopes = widened
		c.logger.Debug("stepping up scope", zap.Strings("scopes", widened))
		token, err = c.acquireToken(ctx, session)
		if err != nil {
			return err
		}
	}

	return c.runSession(ctx, serverURL, token)
}

// flowState carries the discovery results and scope negotiation state
// across token acquisitions.
type flowState struct {
	prm    *ProtectedResourceMetadata
	md     *ServerMetadata
	scopes []string

	clientID string
	attempts int
}

// selectScopes picks the scope to request: the challenge's scope
// attribute wins, then scopes_supported from resource metadata, then
// nothing at all.
func (c *Client) selectScopes(ch Challenge, prm *ProtectedResourceMetadata) []string {
	if ch.Scope != "" {
		return strings.Fields(ch.Scope)
	}
	if len(prm.ScopesSupported) > 0 {
		return append([]string(nil), prm.ScopesSupported...)
	}
	return nil
}

// probe sends one minimal JSON-RPC request and reports the status plus
// the WWW-Authenticate header. The body is drained and discarded.
func (c *Client) probe(ctx context.Context, serverURL, method, token string) (int, string, error) {
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q}`, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, resp.Header.Get("WWW-Authenticate"), nil
}

func unionScopes(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func scopeKey(scopes []string) string {
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		set[s] = true
	}
	parts := make([]string, 0, len(set))
	for s := range set {
		parts = append(parts, s)
	}
	// Order-insensitive comparison key.
	for i := 0; i < len(parts); i++ {
		for j := i + 1; j < len(parts); j++ {
			if parts[j] < parts[i] {
				parts[i], parts[j] = parts[j], parts[i]
			}
		}
	}
	return strings.Join(parts, " ")
}
