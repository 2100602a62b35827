package mockauth

import (
	"fmt"

	"mcpconformance-go/internal/checks"
)

func (s *Server) appendAuthorizeSuccess(req *AuthorizationRequest) {
	s.ledger.Append(checks.Success(
		CheckAuthorizationRequest,
		"Authorization request",
		fmt.Sprintf("client sent a well-formed authorization request (scope %q, ordinal %d)", req.Scope, req.Ordinal),
		checks.RefOAuth21, checks.RefRFC7636,
	).WithDetail("scope", req.Scope).WithDetail("ordinal", req.Ordinal).WithDetail("resource", req.Resource))
}

func (s *Server) appendAuthorizeFailure(req *AuthorizationRequest, expected, observed string) {
	s.ledger.Append(checks.Failure(
		CheckAuthorizationRequest,
		"Authorization request",
		expected, observed,
		checks.RefOAuth21, checks.RefRFC7636,
	).WithDetail("ordinal", req.Ordinal))
}

func (s *Server) appendTokenSuccess(req *TokenRequest, grant *TokenGrant) {
	s.ledger.Append(checks.Success(
		CheckTokenRequest,
		"Token request",
		fmt.Sprintf("client sent a well-formed %s token request", req.GrantType),
		checks.RefOAuth21,
	).WithDetail("grant_type", req.GrantType).WithDetail("scope", grant.Scope).WithDetail("resource", req.Resource))
}

func (s *Server) appendTokenFailure(req *TokenRequest, expected, observed string) {
	s.ledger.Append(checks.Failure(
		CheckTokenRequest,
		"Token request",
		expected, observed,
		checks.RefOAuth21,
	).WithDetail("grant_type", req.GrantType))
}
