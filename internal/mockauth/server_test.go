package mockauth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
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
	s, err := New(ledger, opts, zaptest.NewLogger(t))
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	s.BindIssuer(func() string { return ts.URL })
	return s, ledger, ts
}

func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestMetadataAtRoot(t *testing.T) {
	s, ledger, ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var md Metadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&md))
	assert.Equal(t, ts.URL, md.Issuer)
	assert.Equal(t, ts.URL+"/authorize", md.AuthorizationEndpoint)
	assert.Equal(t, ts.URL+"/token", md.TokenEndpoint)
	assert.Equal(t, ts.URL+"/register", md.RegistrationEndpoint)
	assert.Equal(t, []string{"S256"}, md.CodeChallengeMethodsSupported)

	assert.True(t, s.MetadataRequested())
	assert.True(t, ledger.Observed(CheckAuthorizationServerMetadata))
}

func TestMetadataOpenIDAliasOnly(t *testing.T) {
	_, _, ts := newTestServer(t, Options{MetadataLocation: MetadataOpenIDAlias})

	resp, err := http.Get(ts.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/.well-known/openid-configuration")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetadataTenantPath(t *testing.T) {
	s, _, ts := newTestServer(t, Options{MetadataLocation: MetadataTenantPath, Tenant: "tenant-a"})

	assert.Equal(t, ts.URL+"/tenant-a", s.Issuer())

	resp, err := http.Get(ts.URL + "/.well-known/oauth-authorization-server/tenant-a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var md Metadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&md))
	assert.Equal(t, ts.URL+"/tenant-a", md.Issuer)
	assert.Equal(t, ts.URL+"/authorize", md.AuthorizationEndpoint)
}

func TestRegistrationIssuesClient(t *testing.T) {
	s, ledger, ts := newTestServer(t, Options{})

	body := `{"redirect_uris":["http://127.0.0.1:9/callback"],"client_name":"tester","token_endpoint_auth_method":"none"}`
	resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reg RegistrationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	assert.NotEmpty(t, reg.ClientID)
	assert.Empty(t, reg.ClientSecret)
	assert.Equal(t, 1, s.RegisteredClients())
	assert.True(t, ledger.Observed(CheckClientRegistration))
}

func TestRegistrationRejectsFragmentRedirect(t *testing.T) {
	_, ledger, ts := newTestServer(t, Options{})

	body := `{"redirect_uris":["http://127.0.0.1:9/cb#frag"]}`
	resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	status, ok := ledger.StatusOf(CheckClientRegistration)
	require.True(t, ok)
	assert.Equal(t, checks.StatusFailure, status)
}

func TestAuthorizeRequiresPKCE(t *testing.T) {
	_, ledger, ts := newTestServer(t, Options{})

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {"c1"},
		"redirect_uri":  {"http://127.0.0.1:9/callback"},
		"state":         {"xyz"},
	}
	resp, err := noRedirect().Get(ts.URL + "/authorize?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_request", loc.Query().Get("error"))

	status, ok := ledger.StatusOf(CheckAuthorizationRequest)
	require.True(t, ok)
	assert.Equal(t, checks.StatusFailure, status)
}

func TestAuthorizationCodeFlowWithPKCE(t *testing.T) {
	s, ledger, ts := newTestServer(t, Options{})

	verifier := "test-verifier-with-enough-entropy-0123456789"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"c1"},
		"redirect_uri":          {"http://127.0.0.1:9/callback"},
		"state":                 {"xyz"},
		"scope":                 {"mcp:tools"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"resource":              {"http://127.0.0.1:9/mcp"},
	}
	resp, err := noRedirect().Get(ts.URL + "/authorize?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, FixedAuthorizationCode, loc.Query().Get("code"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {loc.Query().Get("code")},
		"redirect_uri":  {"http://127.0.0.1:9/callback"},
		"client_id":     {"c1"},
		"code_verifier": {verifier},
		"resource":      {"http://127.0.0.1:9/mcp"},
	}
	tokenResp, err := http.PostForm(ts.URL+"/token", form)
	require.NoError(t, err)
	defer tokenResp.Body.Close()
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)

	var tr TokenResponse
	require.NoError(t, json.NewDecoder(tokenResp.Body).Decode(&tr))
	assert.Equal(t, "Bearer", tr.TokenType)
	assert.Equal(t, "mcp:tools", tr.Scope)

	scopes, err := s.VerifyAccessToken(tr.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp:tools"}, scopes)

	status, ok := ledger.StatusOf(CheckPKCES256)
	require.True(t, ok)
	assert.Equal(t, checks.StatusSuccess, status)
	assert.Len(t, s.AuthorizationRequests(), 1)
	assert.Len(t, s.TokenRequests(), 1)
}

func TestTokenRejectsWrongVerifier(t *testing.T) {
	_, ledger, ts := newTestServer(t, Options{})

	sum := sha256.Sum256([]byte("the-real-verifier"))
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"c1"},
		"redirect_uri":          {"http://127.0.0.1:9/callback"},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"S256"},
	}
	resp, err := noRedirect().Get(ts.URL + "/authorize?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {FixedAuthorizationCode},
		"client_id":     {"c1"},
		"code_verifier": {"a-different-verifier"},
	}
	tokenResp, err := http.PostForm(ts.URL+"/token", form)
	require.NoError(t, err)
	defer tokenResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, tokenResp.StatusCode)

	status, ok := ledger.StatusOf(CheckPKCES256)
	require.True(t, ok)
	assert.Equal(t, checks.StatusFailure, status)
}

func TestTokenWithoutAuthorizationStep(t *testing.T) {
	_, _, ts := newTestServer(t, Options{})

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {FixedAuthorizationCode},
		"client_id":  {"c1"},
	}
	resp, err := http.PostForm(ts.URL+"/token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIssueAndVerifyOutOfBand(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})

	token, err := s.IssueToken(TokenGrant{Subject: "u1", ClientID: "c1", Scope: "mcp:read mcp:write"})
	require.NoError(t, err)

	scopes, err := s.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp:read", "mcp:write"}, scopes)

	_, err = s.VerifyAccessToken(token + "tampered")
	assert.Error(t, err)
}

func TestRegistrationDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, Options{DisableRegistration: true})

	resp, err := http.Post(ts.URL+"/register", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
