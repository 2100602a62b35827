// Package refclient implements a well-behaved MCP OAuth client: discovery
// via WWW-Authenticate and well-known metadata, dynamic registration,
// PKCE authorization, token exchange and an MCP session over streamable
// HTTP. It backs the in-process execution strategy and doubles as the
// fixture for exercising the mock servers end to end.
package refclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ProtectedResourceMetadata is the RFC 9728 document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	ResourceName           string   `json:"resource_name,omitempty"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}

// ServerMetadata is the RFC 8414 authorization server document.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	JWKSURI                           string   `json:"jwks_uri,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// Challenge is a parsed WWW-Authenticate response header.
type Challenge struct {
	Scheme           string
	Error            string
	ErrorDescription string
	Scope            string
	ResourceMetadata string
}

// ParseChallenge parses a Bearer challenge's auth-params. Values may be
// quoted or bare.
func ParseChallenge(header string) Challenge {
	ch := Challenge{}
	header = strings.TrimSpace(header)
	if header == "" {
		return ch
	}
	if idx := strings.IndexByte(header, ' '); idx > 0 {
		ch.Scheme = header[:idx]
		header = header[idx+1:]
	} else {
		ch.Scheme = header
		return ch
	}

	for _, part := range splitParams(header) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.TrimSpace(k) {
		case "error":
			ch.Error = v
		case "error_description":
			ch.ErrorDescription = v
		case "scope":
			ch.Scope = v
		case "resource_metadata":
			ch.ResourceMetadata = v
		}
	}
	return ch
}

// splitParams splits comma-separated auth-params without breaking inside
// quoted strings.
func splitParams(s string) []string {
	var out []string
	var b strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case r == ',' && !inQuotes:
			out = append(out, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		out = append(out, strings.TrimSpace(b.String()))
	}
	return out
}

// fetchJSON GETs a JSON document into out.
func (c *Client) fetchJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}
	return nil
}

// discoverPRM locates Protected Resource Metadata. The challenge's
// resource_metadata URL has priority; the path-based and root well-known
// locations are fallbacks, in that order.
func (c *Client) discoverPRM(ctx context.Context, serverURL string, ch Challenge) (*ProtectedResourceMetadata, error) {
	var candidates []string
	if ch.ResourceMetadata != "" {
		candidates = append(candidates, ch.ResourceMetadata)
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	origin := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		candidates = append(candidates, origin+"/.well-known/oauth-protected-resource"+u.Path)
	}
	candidates = append(candidates, origin+"/.well-known/oauth-protected-resource")

	var lastErr error
	for _, candidate := range candidates {
		prm := &ProtectedResourceMetadata{}
		if err := c.fetchJSON(ctx, candidate, prm); err != nil {
			lastErr = err
			continue
		}
		c.logger.Debug("protected resource metadata found")
		return prm, nil
	}
	return nil, fmt.Errorf("protected resource metadata not found: %w", lastErr)
}

// discoverServerMetadata fetches RFC 8414 metadata for an issuer. An
// issuer with a path component uses the path-suffix well-known form; the
// OpenID Connect discovery alias is the final fallback.
func (c *Client) discoverServerMetadata(ctx context.Context, issuer string) (*ServerMetadata, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer %q: %w", issuer, err)
	}
	origin := u.Scheme + "://" + u.Host

	var candidates []string
	if u.Path != "" && u.Path != "/" {
		candidates = append(candidates,
			origin+"/.well-known/oauth-authorization-server"+u.Path,
			origin+u.Path+"/.well-known/oauth-authorization-server",
		)
	} else {
		candidates = append(candidates, origin+"/.well-known/oauth-authorization-server")
	}
	candidates = append(candidates, origin+"/.well-known/openid-configuration")

	var lastErr error
	for _, candidate := range candidates {
		md := &ServerMetadata{}
		if err := c.fetchJSON(ctx, candidate, md); err != nil {
			lastErr = err
			continue
		}
		return md, nil
	}
	return nil, fmt.Errorf("authorization server metadata not found for %s: %w", issuer, lastErr)
}

// canonicalResource normalizes a resource identifier for comparison:
// lowercase scheme and host, default ports elided, fragment dropped.
func canonicalResource(raw string) string {
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
