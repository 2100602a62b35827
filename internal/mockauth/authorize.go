package mockauth

import (
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// handleAuthorize records the request, runs the scenario hook, and
// redirects with the fixed code, echoing state. Out-of-contract requests
// append a FAILURE check but still answer with a valid OAuth error
// redirect so the client is not starved mid-flow.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Resource:            q.Get("resource"),
		Raw:                 q,
	}

	s.mu.Lock()
	req.Ordinal = len(s.authReqs) + 1
	s.authReqs = append(s.authReqs, req)
	s.mu.Unlock()

	s.logger.Debug("authorization request",
		zap.String("client_id", req.ClientID),
		zap.String("scope", req.Scope),
		zap.Int("ordinal", req.Ordinal))

	if veto := s.validateAuthorize(&req); veto != nil {
		s.redirectError(w, req.RedirectURI, req.State, veto)
		return
	}

	if hook := s.opts.Hooks.OnAuthorizationRequest; hook != nil {
		if veto := hook(&req); veto != nil {
			s.redirectError(w, req.RedirectURI, req.State, veto)
			return
		}
	}

	s.appendAuthorizeSuccess(&req)

	// Bind the fixed code to this request so the token endpoint can
	// cross-check PKCE and the resource parameter.
	s.mu.Lock()
	bound := req
	s.codeBound = &bound
	s.mu.Unlock()

	u, err := url.Parse(req.RedirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	rq := u.Query()
	rq.Set("code", FixedAuthorizationCode)
	if req.State != "" {
		rq.Set("state", req.State)
	}
	u.RawQuery = rq.Encode()

	w.Header().Set("Location", u.String())
	w.WriteHeader(http.StatusFound)
}

func (s *Server) validateAuthorize(req *AuthorizationRequest) *ErrorResponse {
	if req.ResponseType != "code" {
		s.appendAuthorizeFailure(req, `response_type "code"`,
			fmt.Sprintf("response_type %q", req.ResponseType))
		return &ErrorResponse{Code: "unsupported_response_type", Description: "only the code response type is supported"}
	}
	if req.ClientID == "" {
		s.appendAuthorizeFailure(req, "a client_id parameter", "no client_id")
		return &ErrorResponse{Code: "invalid_request", Description: "missing client_id"}
	}
	if req.RedirectURI == "" {
		s.appendAuthorizeFailure(req, "a redirect_uri parameter", "no redirect_uri")
		return &ErrorResponse{Code: "invalid_request", Description: "missing redirect_uri"}
	}
	if req.CodeChallenge == "" {
		s.appendAuthorizeFailure(req, "a PKCE code_challenge", "no code_challenge")
		return &ErrorResponse{Code: "invalid_request", Description: "PKCE is required: missing code_challenge"}
	}
	if req.CodeChallengeMethod != "S256" {
		s.appendAuthorizeFailure(req, `code_challenge_method "S256"`,
			fmt.Sprintf("code_challenge_method %q", req.CodeChallengeMethod))
		return &ErrorResponse{Code: "invalid_request", Description: "only the S256 code_challenge_method is supported"}
	}
	return nil
}

// redirectError answers an out-of-contract authorization request with a
// valid OAuth error. When the redirect URI is usable the error travels on
// the redirect, as the protocol requires; otherwise it is returned
// directly.
func (s *Server) redirectError(w http.ResponseWriter, redirectURI, state string, e *ErrorResponse) {
	u, err := url.Parse(redirectURI)
	if redirectURI == "" || err != nil {
		writeOAuthError(w, e)
		return
	}
	q := u.Query()
	q.Set("error", e.Code)
	if e.Description != "" {
		q.Set("error_description", e.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	w.Header().Set("Location", u.String())
	w.WriteHeader(http.StatusFound)
}
