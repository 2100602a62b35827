package mockresource

import (
	"encoding/json"
	"net/http"

	"mcpconformance-go/internal/checks"
)

// PRM is the RFC 9728 Protected Resource Metadata document.
type PRM struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

func (s *Server) handlePRM(checkID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.prmHits++
		s.mu.Unlock()

		doc := PRM{
			Resource:               s.Resource(),
			AuthorizationServers:   s.authServers(),
			ScopesSupported:        s.opts.ScopesSupported,
			BearerMethodsSupported: []string{"header"},
		}

		s.ledger.Append(checks.Success(
			checkID,
			"Protected resource metadata requested",
			"client fetched protected resource metadata from "+r.URL.Path,
			checks.RefRFC9728, checks.RefMCPAuth,
		).WithDetail("path", r.URL.Path).WithDetail("resource", doc.Resource))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

// handleTrap records a discovery-priority failure: the client probed the
// conventional metadata location instead of following the resource_metadata
// URL advertised in the challenge. A 404 is still returned so a recovering
// client can continue.
func (s *Server) handleTrap(w http.ResponseWriter, r *http.Request) {
	s.ledger.Append(checks.Failure(
		CheckPRMPriorityOrder,
		"Metadata discovery priority",
		"client to follow the resource_metadata URL from the WWW-Authenticate challenge",
		"a probe of the conventional location "+r.URL.Path,
		checks.RefRFC9728,
	))
	http.NotFound(w, r)
}
