package mockresource

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcpconformance-go/internal/checks"
)

func newTestServer(t *testing.T, opts Options) (*Server, *checks.Ledger, *httptest.Server) {
	t.Helper()
	ledger := checks.NewLedger()
	s := New(ledger, opts, zaptest.NewLogger(t))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	s.Bind(func() string { return ts.URL }, func() []string { return []string{"http://as.invalid"} })
	return s, ledger, ts
}

func postMCP(t *testing.T, url, token, method string) *http.Response {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":1,"method":"` + method + `"}`
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func staticVerifier(scopes []string) TokenVerifier {
	return func(token string) ([]string, error) {
		return scopes, nil
	}
}

func TestPRMPathBased(t *testing.T) {
	s, ledger, ts := newTestServer(t, Options{Verify: staticVerifier(nil)})

	resp, err := http.Get(ts.URL + "/.well-known/oauth-protected-resource/mcp")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var prm PRM
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&prm))
	assert.Equal(t, ts.URL+"/mcp", prm.Resource)
	assert.Equal(t, []string{"http://as.invalid"}, prm.AuthorizationServers)

	assert.True(t, s.PRMRequested())
	assert.True(t, ledger.Observed(CheckPRMPathBasedRequested))
}

func TestPRMCustomPathWithTrap(t *testing.T) {
	_, ledger, ts := newTestServer(t, Options{
		Location:             PRMCustomPath,
		CustomPath:           "/.well-known/prm-hidden",
		TrapConventionalPath: true,
		Verify:               staticVerifier(nil),
	})

	resp, err := http.Get(ts.URL + "/.well-known/prm-hidden")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ledger.Observed(CheckPRMCustomRequested))

	resp, err = http.Get(ts.URL + "/.well-known/oauth-protected-resource/mcp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	status, ok := ledger.StatusOf(CheckPRMPriorityOrder)
	require.True(t, ok)
	assert.Equal(t, checks.StatusFailure, status)
}

func TestResourceOverride(t *testing.T) {
	s, _, _ := newTestServer(t, Options{
		ResourceOverride: "https://other.example.com/mcp",
		Verify:           staticVerifier(nil),
	})
	assert.Equal(t, "https://other.example.com/mcp", s.Resource())
}

func TestBearerChallengeOnMissingToken(t *testing.T) {
	_, _, ts := newTestServer(t, Options{
		ChallengeScope: "mcp:tools",
		Verify:         staticVerifier(nil),
	})

	resp := postMCP(t, ts.URL+"/mcp", "", "initialize")
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	challenge := resp.Header.Get("WWW-Authenticate")
	assert.Contains(t, challenge, `Bearer realm="mcp-conformance"`)
	assert.Contains(t, challenge, `scope="mcp:tools"`)
	assert.Contains(t, challenge, `resource_metadata="`+ts.URL+`/.well-known/oauth-protected-resource/mcp"`)
}

func TestInsufficientScope(t *testing.T) {
	_, _, ts := newTestServer(t, Options{
		RequiredScopes: []string{"mcp:tools"},
		Verify:         staticVerifier([]string{"mcp:other"}),
	})

	resp := postMCP(t, ts.URL+"/mcp", "some-token", "tools/list")
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	challenge := resp.Header.Get("WWW-Authenticate")
	assert.Contains(t, challenge, `error="insufficient_scope"`)
	assert.Contains(t, challenge, `scope="mcp:tools"`)
}

func TestMethodScopesTakePrecedence(t *testing.T) {
	s, _, ts := newTestServer(t, Options{
		RequiredScopes: []string{"mcp:read"},
		MethodScopes:   map[string][]string{"tools/call": {"mcp:read", "mcp:write"}},
		Verify:         staticVerifier([]string{"mcp:read"}),
	})

	resp := postMCP(t, ts.URL+"/mcp", "tok", "tools/list")
	resp.Body.Close()
	assert.NotEqual(t, http.StatusForbidden, resp.StatusCode)
	assert.NotEqual(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postMCP(t, ts.URL+"/mcp", "tok", "tools/call")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `scope="mcp:read mcp:write"`)

	assert.Equal(t, []string{"tools/list"}, s.MCPMethods())
}

func TestAlwaysDeny(t *testing.T) {
	_, _, ts := newTestServer(t, Options{
		AlwaysDeny: true,
		DenyScope:  "mcp:unobtainable",
		Verify:     staticVerifier([]string{"mcp:unobtainable"}),
	})

	resp := postMCP(t, ts.URL+"/mcp", "tok", "tools/call")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `scope="mcp:unobtainable"`)
}

func TestDisableAuthCountsRequests(t *testing.T) {
	s, _, ts := newTestServer(t, Options{DisableAuth: true})

	resp := postMCP(t, ts.URL+"/mcp", "", "initialize")
	resp.Body.Close()

	assert.Equal(t, 1, s.MCPRequests())
	assert.Equal(t, []string{"initialize"}, s.MCPMethods())
}

func TestRejectedTokenGets401(t *testing.T) {
	_, _, ts := newTestServer(t, Options{
		Verify: func(string) ([]string, error) {
			return nil, assert.AnError
		},
	})

	resp := postMCP(t, ts.URL+"/mcp", "bad-token", "initialize")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), `error="invalid_token"`)
}
