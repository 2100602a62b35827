package refclient

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// redirectURI is registered and echoed but never listened on: the
// authorization redirect is captured from the Location header instead.
const redirectURI = "http://127.0.0.1:19900/oauth/callback"

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// acquireToken picks the grant from the out-of-band context: a subject
// token means token exchange, an assertion key means jwt-bearer, a client
// secret means client_credentials, otherwise the authorization code flow.
func (c *Client) acquireToken(ctx context.Context, state *flowState) (string, error) {
	switch {
	case c.context["subject_token"] != "":
		state.attempts++
		return c.tokenExchange(ctx, state)
	case c.context["assertion_key_pem"] != "":
		state.attempts++
		return c.jwtBearer(ctx, state)
	case c.context["client_secret"] != "":
		state.attempts++
		return c.clientCredentials(ctx, state)
	default:
		return c.authorizationCode(ctx, state)
	}
}

// authorizationCode runs registration (first time), the PKCE authorize
// redirect, and the code exchange.
func (c *Client) authorizationCode(ctx context.Context, state *flowState) (string, error) {
	if state.clientID == "" {
		clientID, err := c.register(ctx, state)
		if err != nil {
			return "", err
		}
		state.clientID = clientID
	}

	verifier, challenge, err := newPKCEPair()
	if err != nil {
		return "", err
	}

	code, err := c.authorize(ctx, state, challenge)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {state.clientID},
		"code_verifier": {verifier},
		"resource":      {state.prm.Resource},
	}
	return c.postToken(ctx, state.md.TokenEndpoint, form, "", "")
}

// register performs RFC 7591 dynamic registration, falling back to a
// pre-provisioned client_id from the context when the server offers no
// registration endpoint.
func (c *Client) register(ctx context.Context, state *flowState) (string, error) {
	if state.md.RegistrationEndpoint == "" {
		if id := c.context["client_id"]; id != "" {
			return id, nil
		}
		return "", fmt.Errorf("no registration endpoint and no pre-provisioned client_id")
	}

	reg := map[string]any{
		"redirect_uris":              []string{redirectURI},
		"grant_types":                []string{"authorization_code"},
		"response_types":             []string{"code"},
		"client_name":                "mcpconformance-refclient",
		"token_endpoint_auth_method": "none",
	}
	if len(state.scopes) > 0 {
		reg["scope"] = strings.Join(state.scopes, " ")
	}
	body, _ := json.Marshal(reg)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, state.md.RegistrationEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("registration failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("registration returned %d: %s", resp.StatusCode, payload)
	}

	var out struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse registration response: %w", err)
	}
	if out.ClientID == "" {
		return "", fmt.Errorf("registration response carries no client_id")
	}
	c.logger.Debug("registered client", zap.String("client_id", out.ClientID))
	return out.ClientID, nil
}

// authorize drives the authorization endpoint and captures the code from
// the redirect Location.
func (c *Client) authorize(ctx context.Context, state *flowState, challenge string) (string, error) {
	stateParam := uuid.NewString()
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {state.clientID},
		"redirect_uri":          {redirectURI},
		"state":                 {stateParam},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"resource":              {state.prm.Resource},
	}
	if len(state.scopes) > 0 {
		q.Set("scope", strings.Join(state.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, state.md.AuthorizationEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authorization request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	state.attempts++

	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		return "", fmt.Errorf("authorization endpoint returned %d, want a redirect", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return "", fmt.Errorf("bad redirect location: %w", err)
	}
	if e := loc.Query().Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s (%s)", e, loc.Query().Get("error_description"))
	}
	if got := loc.Query().Get("state"); got != stateParam {
		return "", fmt.Errorf("state mismatch: sent %q, got %q", stateParam, got)
	}
	code := loc.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect carries no authorization code")
	}
	return code, nil
}

func (c *Client) clientCredentials(ctx context.Context, state *flowState) (string, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"resource":   {state.prm.Resource},
	}
	if len(state.scopes) > 0 {
		form.Set("scope", strings.Join(state.scopes, " "))
	}
	return c.postToken(ctx, state.md.TokenEndpoint, form,
		c.context["client_id"], c.context["client_secret"])
}

// jwtBearer signs an assertion with the out-of-band key and presents it
// per RFC 7523.
func (c *Client) jwtBearer(ctx context.Context, state *flowState) (string, error) {
	block, _ := pem.Decode([]byte(c.context["assertion_key_pem"]))
	if block == nil {
		return "", fmt.Errorf("assertion key is not valid PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse assertion key: %w", err)
	}

	clientID := c.context["client_id"]
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{state.md.TokenEndpoint},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		ID:        uuid.NewString(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
		"client_id":  {clientID},
		"resource":   {state.prm.Resource},
	}
	if len(state.scopes) > 0 {
		form.Set("scope", strings.Join(state.scopes, " "))
	}
	return c.postToken(ctx, state.md.TokenEndpoint, form, "", "")
}

func (c *Client) tokenExchange(ctx context.Context, state *flowState) (string, error) {
	form := url.Values{
		"grant_type":         {"urn:ietf:params:oauth:grant-type:token-exchange"},
		"subject_token":      {c.context["subject_token"]},
		"subject_token_type": {"urn:ietf:params:oauth:token-type:access_token"},
		"client_id":          {c.context["client_id"]},
		"resource":           {state.prm.Resource},
	}
	if len(state.scopes) > 0 {
		form.Set("scope", strings.Join(state.scopes, " "))
	}
	return c.postToken(ctx, state.md.TokenEndpoint, form, "", "")
}

// postToken submits a token request, with HTTP Basic client
// authentication when a secret is supplied.
func (c *Client) postToken(ctx context.Context, endpoint string, form url.Values, basicUser, basicSecret string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || tr.Error != "" {
		return "", fmt.Errorf("token endpoint returned %d: %s %s", resp.StatusCode, tr.Error, tr.ErrorDescription)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response carries no access_token")
	}
	return tr.AccessToken, nil
}

// newPKCEPair generates a verifier and its S256 challenge.
func newPKCEPair() (verifier, challenge string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	verifier = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}
