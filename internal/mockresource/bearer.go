package mockresource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// metadataURL is where the challenge points clients for discovery. Built
// per request: the 401/403 must cite the resource server's own base URL,
// which is not known at construction.
func (s *Server) metadataURL() string {
	switch s.opts.Location {
	case PRMRoot:
		return s.baseURL() + "/.well-known/oauth-protected-resource"
	case PRMCustomPath:
		return s.baseURL() + s.opts.CustomPath
	default:
		return s.baseURL() + "/.well-known/oauth-protected-resource/mcp"
	}
}

// countRequests tracks MCP traffic without enforcing authentication.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordRequest(r)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recordRequest(r *http.Request) {
	method := peekJSONRPCMethod(r)
	s.mu.Lock()
	s.mcpRequests++
	if method != "" {
		s.mcpMethods = append(s.mcpMethods, method)
	}
	s.mu.Unlock()
}

// requireBearer applies bearer-token enforcement in front of the MCP
// endpoint. Unauthenticated requests get 401, authenticated but
// under-scoped requests get 403; both carry a WWW-Authenticate challenge
// with the resource_metadata URL and, when configured, the required scope.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			s.challenge(w, http.StatusUnauthorized, "", "authentication required", s.opts.ChallengeScope)
			return
		}

		scopes, err := s.opts.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			s.logger.Debug("bearer token rejected", zap.Error(err))
			s.challenge(w, http.StatusUnauthorized, "invalid_token", "token verification failed", s.opts.ChallengeScope)
			return
		}

		if s.opts.AlwaysDeny {
			s.challenge(w, http.StatusForbidden, "insufficient_scope", "granted scope is never sufficient", s.opts.DenyScope)
			return
		}

		required := s.requiredScopesFor(r)
		if missing := missingScopes(required, scopes); len(missing) > 0 {
			s.challenge(w, http.StatusForbidden, "insufficient_scope",
				fmt.Sprintf("missing scope(s): %s", strings.Join(missing, " ")),
				strings.Join(required, " "))
			return
		}

		s.recordRequest(r)

		next.ServeHTTP(w, r)
	})
}

// requiredScopesFor resolves the scope requirement for one request.
// Per-method requirements take precedence so step-up scenarios can demand
// a broader scope for tools/call than for tools/list.
func (s *Server) requiredScopesFor(r *http.Request) []string {
	if len(s.opts.MethodScopes) == 0 {
		return s.opts.RequiredScopes
	}
	method := peekJSONRPCMethod(r)
	if method != "" {
		if scopes, ok := s.opts.MethodScopes[method]; ok {
			return scopes
		}
	}
	return s.opts.RequiredScopes
}

// peekJSONRPCMethod reads the request body to find the JSON-RPC method,
// then restores it for the MCP handler.
func peekJSONRPCMethod(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var req struct {
		Method string `json:"method"`
	}
	if json.Unmarshal(body, &req) != nil {
		return ""
	}
	return req.Method
}

func (s *Server) challenge(w http.ResponseWriter, status int, errCode, description, scope string) {
	parts := []string{`Bearer realm="mcp-conformance"`}
	if errCode != "" {
		parts = append(parts, fmt.Sprintf("error=%q", errCode))
	}
	if scope != "" {
		parts = append(parts, fmt.Sprintf("scope=%q", scope))
	}
	parts = append(parts, fmt.Sprintf("resource_metadata=%q", s.metadataURL()))
	w.Header().Set("WWW-Authenticate", strings.Join(parts, ", "))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string]string{"error": "unauthorized", "error_description": description}
	if errCode != "" {
		body["error"] = errCode
	}
	_ = json.NewEncoder(w).Encode(body)
}

func missingScopes(required, granted []string) []string {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	var missing []string
	for _, s := range required {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	return missing
}
