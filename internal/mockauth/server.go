package mockauth

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mcpconformance-go/internal/checks"
)

// Check IDs appended by the authorization server endpoints.
const (
	CheckAuthorizationServerMetadata = "authorization-server-metadata"
	CheckClientRegistration          = "client-registration"
	CheckAuthorizationRequest        = "authorization-request"
	CheckTokenRequest                = "token-request"
	CheckPKCES256                    = "pkce-s256"
)

// Server is a mock OAuth 2.1 authorization server. It is constructed
// unbound; the owning scenario binds the issuer accessor once the
// lifecycle has allocated a port.
type Server struct {
	opts    Options
	ledger  *checks.Ledger
	keyRing *KeyRing
	logger  *zap.Logger

	// issuer resolves to the bound base URL. Deferred because the port is
	// OS-assigned after construction.
	issuer func() string

	mu           sync.Mutex
	clients      map[string]*registeredClient
	authReqs     []AuthorizationRequest
	tokenReqs    []TokenRequest
	codeBound    *AuthorizationRequest
	metadataHits int
}

type registeredClient struct {
	ClientID     string
	ClientSecret string
	RedirectURIs []string
	Public       bool
}

// New creates an unbound mock authorization server appending to the given
// ledger.
func New(ledger *checks.Ledger, opts Options, logger *zap.Logger) (*Server, error) {
	opts.applyDefaults()
	keyRing, err := NewKeyRing()
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:    opts,
		ledger:  ledger,
		keyRing: keyRing,
		logger:  logger.Named("mockauth"),
		clients: make(map[string]*registeredClient),
	}, nil
}

// BindIssuer supplies the deferred base-URL accessor. Must be called
// before the first request is served; the scenario does this right after
// creating the lifecycle, before any client can know the address.
func (s *Server) BindIssuer(baseURL func() string) {
	s.issuer = baseURL
}

// KeyRing exposes the signing keys so the resource server can verify
// issued tokens.
func (s *Server) KeyRing() *KeyRing {
	return s.keyRing
}

// Issuer returns the issuer identity. With tenant-prefixed metadata the
// identity carries the tenant path component, so clients derive the
// path-suffix well-known URL per RFC 8414; endpoints stay at the root.
func (s *Server) Issuer() string {
	base := s.issuer()
	if s.opts.MetadataLocation == MetadataTenantPath {
		return base + "/" + s.opts.Tenant
	}
	return base
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	switch s.opts.MetadataLocation {
	case MetadataOpenIDAlias:
		r.Get("/.well-known/openid-configuration", s.handleMetadata)
	case MetadataTenantPath:
		r.Get("/.well-known/oauth-authorization-server/"+s.opts.Tenant, s.handleMetadata)
	default:
		r.Get("/.well-known/oauth-authorization-server", s.handleMetadata)
		r.Get("/.well-known/openid-configuration", s.handleMetadata)
	}

	r.Get("/authorize", s.handleAuthorize)
	r.Post("/token", s.handleToken)
	if !s.opts.DisableRegistration {
		r.Post("/register", s.handleRegistration)
	}
	r.Get("/jwks.json", s.handleJWKS)

	return r
}

// Metadata is the RFC 8414 authorization server metadata document.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	base := s.issuer()

	md := Metadata{
		Issuer:                        s.Issuer(),
		AuthorizationEndpoint:         base + "/authorize",
		TokenEndpoint:                 base + "/token",
		JWKSURI:                       base + "/jwks.json",
		ScopesSupported:               s.opts.SupportedScopes,
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           s.opts.GrantTypesSupported,
		CodeChallengeMethodsSupported: []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{
			"client_secret_basic",
			"client_secret_post",
			"none",
		},
	}
	if !s.opts.DisableRegistration {
		md.RegistrationEndpoint = base + "/register"
	}

	s.mu.Lock()
	s.metadataHits++
	s.mu.Unlock()

	s.ledger.Append(checks.Success(
		CheckAuthorizationServerMetadata,
		"Authorization server metadata requested",
		"client fetched the authorization server metadata document from "+r.URL.Path,
		checks.RefRFC8414, checks.RefMCPAuth,
	).WithDetail("path", r.URL.Path))

	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.keyRing.JWKS())
}

// MetadataRequested reports whether the metadata document was fetched.
func (s *Server) MetadataRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataHits > 0
}

// AuthorizationRequests returns the captured /authorize requests in
// arrival order.
func (s *Server) AuthorizationRequests() []AuthorizationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuthorizationRequest, len(s.authReqs))
	copy(out, s.authReqs)
	return out
}

// TokenRequests returns the captured /token requests in arrival order.
func (s *Server) TokenRequests() []TokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TokenRequest, len(s.tokenReqs))
	copy(out, s.tokenReqs)
	return out
}

// AuthorizationAttempts returns how many authorization requests were
// observed, used by retry-limit and step-up validation.
func (s *Server) AuthorizationAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authReqs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOAuthError answers with a contractually valid OAuth error body so
// downstream checks in the same flow can still execute.
func writeOAuthError(w http.ResponseWriter, e *ErrorResponse) {
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

func splitScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
