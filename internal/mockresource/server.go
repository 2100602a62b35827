// Package mockresource implements the disposable mock protected MCP
// resource server. It wraps a real MCP endpoint with per-request bearer
// enforcement and serves Protected Resource Metadata at a configurable
// location, so every discovery variant the specification permits can be
// exercised.
package mockresource

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"mcpconformance-go/internal/checks"
)

// PRMLocation selects where Protected Resource Metadata is served.
type PRMLocation int

const (
	// PRMPathBased serves /.well-known/oauth-protected-resource/mcp, the
	// path-based form matching the /mcp endpoint.
	PRMPathBased PRMLocation = iota
	// PRMRoot serves /.well-known/oauth-protected-resource.
	PRMRoot
	// PRMCustomPath serves metadata only at Options.CustomPath, reachable
	// solely via the resource_metadata URL in the challenge header.
	PRMCustomPath
)

// Check IDs appended by the resource server.
const (
	CheckPRMPathBasedRequested = "prm-pathbased-requested"
	CheckPRMRootRequested      = "prm-root-requested"
	CheckPRMCustomRequested    = "prm-custom-requested"
	CheckPRMPriorityOrder      = "prm-priority-order"
)

// TokenVerifier validates a bearer token and returns its granted scopes.
// The scenario binds this to the mock authorization server's verifier so
// issued tokens are honored without shared state.
type TokenVerifier func(token string) ([]string, error)

// Options configures a mock resource server instance.
type Options struct {
	Location PRMLocation
	// CustomPath is the metadata path used with PRMCustomPath, e.g. a
	// random segment only discoverable through the challenge.
	CustomPath string

	// TrapConventionalPath registers a handler at the conventional
	// path-based location that records a FAILURE if the client probes it
	// instead of following the advertised challenge. Positive test for
	// discovery-priority ordering.
	TrapConventionalPath bool

	// ResourceOverride replaces the advertised `resource` value. Used by
	// the mismatch scenario to advertise a foreign resource.
	ResourceOverride string

	// ScopesSupported advertised in the metadata document.
	ScopesSupported []string

	// RequiredScopes are needed for any MCP request. MethodScopes, when
	// set for a JSON-RPC method, takes precedence (step-up).
	RequiredScopes []string
	MethodScopes   map[string][]string

	// ChallengeScope, when non-empty, is sent as the scope attribute of
	// the WWW-Authenticate challenge.
	ChallengeScope string

	// AlwaysDeny makes every authenticated MCP request fail with 403 and
	// an unsatisfiable scope (retry-limit scenarios).
	AlwaysDeny bool
	DenyScope  string

	// DisableAuth serves the MCP endpoint without bearer enforcement.
	// Used by the non-auth smoke scenarios.
	DisableAuth bool

	Verify TokenVerifier
}

// Server is a mock protected resource. Like the authorization server it
// is built unbound and bound to its lifecycle's base URL afterwards.
type Server struct {
	opts   Options
	ledger *checks.Ledger
	logger *zap.Logger

	baseURL func() string

	// authServers resolves the authorization server URLs named in the
	// metadata document. Deferred: the authorization server's port is not
	// known at construction.
	authServers func() []string

	mcpHandler http.Handler

	mu          sync.Mutex
	prmHits     int
	mcpRequests int
	mcpMethods  []string
}

// New creates an unbound mock resource server appending to the ledger.
func New(ledger *checks.Ledger, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		opts:   opts,
		ledger: ledger,
		logger: logger.Named("mockresource"),
	}
	s.mcpHandler = server.NewStreamableHTTPServer(newMCPServer())
	return s
}

// Bind supplies the deferred accessors for the server's own base URL and
// the authorization server list.
func (s *Server) Bind(baseURL func() string, authServers func() []string) {
	s.baseURL = baseURL
	s.authServers = authServers
}

// MCPURL returns the externally reachable MCP endpoint.
func (s *Server) MCPURL() string {
	return s.baseURL() + "/mcp"
}

// Resource returns the resource identifier advertised in PRM. This is the
// byte-for-byte value the resource-mismatch check later compares against.
func (s *Server) Resource() string {
	if s.opts.ResourceOverride != "" {
		return s.opts.ResourceOverride
	}
	return s.MCPURL()
}

// Handler returns the HTTP handler serving metadata and the guarded MCP
// endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	const conventional = "/.well-known/oauth-protected-resource/mcp"

	switch s.opts.Location {
	case PRMRoot:
		r.Get("/.well-known/oauth-protected-resource", s.handlePRM(CheckPRMRootRequested))
	case PRMCustomPath:
		r.Get(s.opts.CustomPath, s.handlePRM(CheckPRMCustomRequested))
	default:
		r.Get(conventional, s.handlePRM(CheckPRMPathBasedRequested))
	}

	if s.opts.TrapConventionalPath && s.opts.Location != PRMPathBased {
		r.Get(conventional, s.handleTrap)
	}

	guarded := s.requireBearer(s.mcpHandler)
	if s.opts.DisableAuth {
		guarded = s.countRequests(s.mcpHandler)
	}
	r.Handle("/mcp", guarded)
	r.Handle("/mcp/*", guarded)

	return r
}

// MCPRequests returns how many authenticated MCP requests were served.
func (s *Server) MCPRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mcpRequests
}

// MCPMethods returns the JSON-RPC methods of the served MCP requests in
// arrival order.
func (s *Server) MCPMethods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.mcpMethods))
	copy(out, s.mcpMethods)
	return out
}

// PRMRequested reports whether the metadata document was fetched.
func (s *Server) PRMRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prmHits > 0
}
