// Package mockauth implements the disposable mock OAuth 2.1 authorization
// server. It serves discovery metadata, authorization, token and dynamic
// registration endpoints, and appends a conformance check to the owning
// scenario's ledger for every request it sees. Behavior is customized
// through injected hooks so each scenario supplies its own validation
// without duplicating endpoint plumbing.
package mockauth

import (
	"encoding/json"
	"net/url"
)

// MetadataLocation selects where the authorization server metadata
// document is served.
type MetadataLocation int

const (
	// MetadataRoot serves /.well-known/oauth-authorization-server.
	MetadataRoot MetadataLocation = iota
	// MetadataOpenIDAlias serves only /.well-known/openid-configuration.
	MetadataOpenIDAlias
	// MetadataTenantPath serves the RFC 8414 path-suffix form
	// /.well-known/oauth-authorization-server/{tenant}.
	MetadataTenantPath
)

// FixedAuthorizationCode is the code every successful authorization
// redirect carries. The token endpoint binds it to the most recent
// authorization request.
const FixedAuthorizationCode = "mock-authorization-code"

// AuthorizationRequest is the captured shape of one /authorize request.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Resource            string

	// Ordinal is the 1-based position of this request among all
	// authorization requests the server observed, used for step-up
	// verification.
	Ordinal int

	Raw url.Values
}

// Scopes returns the space-separated scope parameter as a list.
func (r *AuthorizationRequest) Scopes() []string {
	return splitScopes(r.Scope)
}

// TokenRequest is the captured shape of one /token request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	Scope        string
	Resource     string

	// Assertion carries the jwt-bearer assertion or the token-exchange
	// subject_token, depending on the grant type.
	Assertion string

	// Basic credentials from the Authorization header, when present.
	BasicUser    string
	BasicSecret  string
	HasBasicAuth bool

	Form url.Values
}

// RegistrationRequest is the captured shape of one dynamic client
// registration request (RFC 7591).
type RegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ErrorResponse is an OAuth error a hook can return to veto a request.
// The server still answers with a syntactically valid error body so the
// client-under-test is not starved mid-flow.
type ErrorResponse struct {
	Code        string
	Description string
	// HTTPStatus defaults to 400 when zero.
	HTTPStatus int
}

// TokenGrant is the issuance the token endpoint is about to perform.
// Hooks may mutate Scope or Subject before the token is signed.
type TokenGrant struct {
	Subject  string
	ClientID string
	Scope    string
	Resource string
}

// Hooks are the per-scenario customization points. A nil hook means
// default behavior. A hook returning a non-nil ErrorResponse vetoes the
// request.
type Hooks struct {
	OnAuthorizationRequest func(req *AuthorizationRequest) *ErrorResponse
	OnTokenRequest         func(req *TokenRequest, grant *TokenGrant) *ErrorResponse
	OnRegistrationRequest  func(req *RegistrationRequest) *ErrorResponse
}

// Options configures a mock authorization server instance.
type Options struct {
	MetadataLocation MetadataLocation
	// Tenant is the path suffix used with MetadataTenantPath.
	Tenant string

	SupportedScopes []string

	// GrantTypesSupported advertised in metadata. Defaults to the four
	// grants the token endpoint accepts.
	GrantTypesSupported []string

	// DisableRegistration omits the registration endpoint and its
	// metadata entry.
	DisableRegistration bool

	Hooks Hooks
}

func (o *Options) applyDefaults() {
	if len(o.SupportedScopes) == 0 {
		o.SupportedScopes = []string{"mcp:tools"}
	}
	if len(o.GrantTypesSupported) == 0 {
		o.GrantTypesSupported = []string{
			"authorization_code",
			"client_credentials",
			"urn:ietf:params:oauth:grant-type:jwt-bearer",
			"urn:ietf:params:oauth:grant-type:token-exchange",
		}
	}
}
