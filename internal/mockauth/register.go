package mockauth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"mcpconformance-go/internal/checks"
)

// RegistrationResponse is a successful RFC 7591 registration response.
type RegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeOAuthError(w, &ErrorResponse{Code: "invalid_client_metadata", Description: "failed to read request body"})
		return
	}

	var req RegistrationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.ledger.Append(checks.Failure(
			CheckClientRegistration,
			"Dynamic client registration",
			"a JSON client metadata document", "unparseable request body",
			checks.RefRFC7591,
		))
		writeOAuthError(w, &ErrorResponse{Code: "invalid_client_metadata", Description: "request body is not valid JSON"})
		return
	}
	req.Raw = body

	if veto := s.validateRegistration(&req); veto != nil {
		writeOAuthError(w, veto)
		return
	}

	if hook := s.opts.Hooks.OnRegistrationRequest; hook != nil {
		if veto := hook(&req); veto != nil {
			writeOAuthError(w, veto)
			return
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}
	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	client := &registeredClient{
		ClientID:     uuid.NewString(),
		RedirectURIs: req.RedirectURIs,
		Public:       authMethod == "none",
	}
	if !client.Public {
		client.ClientSecret = uuid.NewString()
	}

	s.mu.Lock()
	s.clients[client.ClientID] = client
	s.mu.Unlock()

	s.ledger.Append(checks.Success(
		CheckClientRegistration,
		"Dynamic client registration",
		fmt.Sprintf("client registered dynamically with %d redirect URI(s)", len(req.RedirectURIs)),
		checks.RefRFC7591, checks.RefMCPAuth,
	).WithDetail("client_name", req.ClientName).WithDetail("token_endpoint_auth_method", authMethod))

	resp := RegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            client.ClientSecret,
		ClientIDIssuedAt:        time.Now().Unix(),
		ClientSecretExpiresAt:   0,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		ClientName:              req.ClientName,
		TokenEndpointAuthMethod: authMethod,
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) validateRegistration(req *RegistrationRequest) *ErrorResponse {
	if len(req.RedirectURIs) == 0 {
		s.ledger.Append(checks.Failure(
			CheckClientRegistration,
			"Dynamic client registration",
			"at least one redirect_uri", "an empty redirect_uris array",
			checks.RefRFC7591,
		))
		return &ErrorResponse{Code: "invalid_redirect_uri", Description: "at least one redirect_uri is required"}
	}
	for _, raw := range req.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Fragment != "" {
			s.ledger.Append(checks.Failure(
				CheckClientRegistration,
				"Dynamic client registration",
				"absolute redirect URIs without fragments",
				fmt.Sprintf("redirect_uri %q", raw),
				checks.RefRFC7591,
			))
			return &ErrorResponse{Code: "invalid_redirect_uri", Description: "redirect_uri must be an absolute URI without a fragment"}
		}
	}
	return nil
}

// RegisteredClients returns the number of dynamically registered clients.
func (s *Server) RegisteredClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
