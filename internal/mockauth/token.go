package mockauth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"mcpconformance-go/internal/checks"
)

const accessTokenExpiry = time.Hour

// Grant type URNs accepted by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	GrantTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"
)

// TokenResponse is a successful token endpoint response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, &ErrorResponse{Code: "invalid_request", Description: "failed to parse form body"})
		return
	}

	req := TokenRequest{
		GrantType:    r.FormValue("grant_type"),
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		ClientID:     r.FormValue("client_id"),
		ClientSecret: r.FormValue("client_secret"),
		CodeVerifier: r.FormValue("code_verifier"),
		Scope:        r.FormValue("scope"),
		Resource:     r.FormValue("resource"),
		Form:         r.PostForm,
	}
	switch req.GrantType {
	case GrantJWTBearer:
		req.Assertion = r.FormValue("assertion")
	case GrantTokenExchange:
		req.Assertion = r.FormValue("subject_token")
	}
	if user, secret, ok := r.BasicAuth(); ok {
		req.BasicUser = user
		req.BasicSecret = secret
		req.HasBasicAuth = true
		if req.ClientID == "" {
			req.ClientID = user
		}
	}

	s.mu.Lock()
	s.tokenReqs = append(s.tokenReqs, req)
	bound := s.codeBound
	s.mu.Unlock()

	s.logger.Debug("token request",
		zap.String("grant_type", req.GrantType),
		zap.String("client_id", req.ClientID))

	grant := &TokenGrant{
		Subject:  "conformance-user",
		ClientID: req.ClientID,
		Resource: req.Resource,
	}

	switch req.GrantType {
	case GrantAuthorizationCode:
		if veto := s.validateCodeGrant(&req, bound, grant); veto != nil {
			writeOAuthError(w, veto)
			return
		}
	case GrantClientCredentials, GrantJWTBearer, GrantTokenExchange:
		grant.Subject = req.ClientID
		grant.Scope = req.Scope
	default:
		s.appendTokenFailure(&req, "a supported grant_type",
			fmt.Sprintf("grant_type %q", req.GrantType))
		writeOAuthError(w, &ErrorResponse{Code: "unsupported_grant_type",
			Description: "unsupported grant type: " + req.GrantType})
		return
	}

	if hook := s.opts.Hooks.OnTokenRequest; hook != nil {
		if veto := hook(&req, grant); veto != nil {
			writeOAuthError(w, veto)
			return
		}
	}

	token, err := s.signAccessToken(grant)
	if err != nil {
		writeOAuthError(w, &ErrorResponse{Code: "server_error",
			Description: "failed to sign access token", HTTPStatus: http.StatusInternalServerError})
		return
	}

	s.appendTokenSuccess(&req, grant)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessTokenExpiry.Seconds()),
		Scope:       grant.Scope,
	})
}

// validateCodeGrant checks the authorization_code exchange against the
// request the fixed code was bound to, including PKCE recomputation.
// Default issuance echoes the scope requested at the authorization step
// unless a hook overrides it.
func (s *Server) validateCodeGrant(req *TokenRequest, bound *AuthorizationRequest, grant *TokenGrant) *ErrorResponse {
	if bound == nil {
		s.appendTokenFailure(req, "a preceding authorization request", "token exchange with no authorization step observed")
		return &ErrorResponse{Code: "invalid_grant", Description: "no authorization code has been issued"}
	}
	if req.Code != FixedAuthorizationCode {
		s.appendTokenFailure(req, fmt.Sprintf("the issued code %q", FixedAuthorizationCode),
			fmt.Sprintf("code %q", req.Code))
		return &ErrorResponse{Code: "invalid_grant", Description: "unknown authorization code"}
	}

	// PKCE: recompute the S256 challenge from the verifier sent here and
	// compare against the challenge sent at the authorization step.
	switch {
	case req.CodeVerifier == "":
		s.ledger.Append(checks.Failure(
			CheckPKCES256,
			"PKCE code verifier",
			"a code_verifier at the token step", "no code_verifier",
			checks.RefRFC7636,
		))
		return &ErrorResponse{Code: "invalid_grant", Description: "missing code_verifier"}
	case computeS256Challenge(req.CodeVerifier) != bound.CodeChallenge:
		s.ledger.Append(checks.Failure(
			CheckPKCES256,
			"PKCE code verifier",
			fmt.Sprintf("S256(code_verifier) == %q from the authorization request", bound.CodeChallenge),
			fmt.Sprintf("S256(code_verifier) == %q", computeS256Challenge(req.CodeVerifier)),
			checks.RefRFC7636,
		))
		return &ErrorResponse{Code: "invalid_grant", Description: "code_verifier does not match code_challenge"}
	default:
		s.ledger.Append(checks.Success(
			CheckPKCES256,
			"PKCE code verifier",
			"recomputed S256 challenge from the token-step verifier matches the authorization-step challenge",
			checks.RefRFC7636,
		))
	}

	grant.Scope = bound.Scope
	if grant.Resource == "" {
		grant.Resource = bound.Resource
	}
	return nil
}

func computeS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// tokenClaims is the claim set carried by issued access tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope,omitempty"`
}

func (s *Server) signAccessToken(grant *TokenGrant) (string, error) {
	kid, key := s.keyRing.ActiveKey()

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer(),
			Subject:   grant.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenExpiry)),
		},
		ClientID: grant.ClientID,
		Scope:    grant.Scope,
	}
	if grant.Resource != "" {
		claims.Audience = jwt.ClaimStrings{grant.Resource}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

// IssueToken signs a token out-of-band, bypassing the endpoints. Used to
// mint subject tokens for exchange flows and fixtures in tests. Callable
// only after the issuer accessor is bound.
func (s *Server) IssueToken(grant TokenGrant) (string, error) {
	return s.signAccessToken(&grant)
}

// VerifyAccessToken parses and verifies a token issued by this server,
// returning its scopes. Used by the resource server for per-request
// bearer enforcement.
func (s *Server) VerifyAccessToken(tokenStr string) ([]string, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		if kid, ok := t.Header["kid"].(string); ok {
			if key, found := s.keyRing.PublicKey(kid); found {
				return key, nil
			}
		}
		return s.keyRing.ActivePublicKey(), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return strings.Fields(claims.Scope), nil
}
