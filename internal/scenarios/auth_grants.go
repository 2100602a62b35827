package scenarios

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockauth"
	"mcpconformance-go/internal/mockresource"
)

// clientCredentials pre-provisions a confidential client and disables
// registration; the client must authenticate the client_credentials
// grant with the provided secret, via Basic auth or form parameters.
func clientCredentials() harness.Definition {
	return harness.Definition{
		Name:        "extensions/client-credentials",
		Description: "Pre-provisioned confidential client using the client_credentials grant.",
		Suites:      []string{harness.SuiteExtensions, harness.SuiteActive},
		ExpectedChecks: []string{
			mockresource.CheckPRMPathBasedRequested,
			mockauth.CheckAuthorizationServerMetadata,
			mockauth.CheckTokenRequest,
			CheckClientCredentialsAuth,
		},
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			clientID := "conf-client-" + uuid.NewString()
			clientSecret := uuid.NewString()

			authOpts := mockauth.Options{
				DisableRegistration: true,
				GrantTypesSupported: []string{mockauth.GrantClientCredentials},
				Hooks: mockauth.Hooks{
					OnTokenRequest: func(req *mockauth.TokenRequest, grant *mockauth.TokenGrant) *mockauth.ErrorResponse {
						if req.GrantType != mockauth.GrantClientCredentials {
							env.Ledger.Append(checks.Failure(
								CheckClientCredentialsAuth,
								"Client credentials grant",
								fmt.Sprintf("grant_type %q", mockauth.GrantClientCredentials),
								fmt.Sprintf("grant_type %q", req.GrantType),
								checks.RefOAuth21,
							))
							return &mockauth.ErrorResponse{Code: "unauthorized_client",
								Description: "only client_credentials is allowed here"}
						}
						secret := req.ClientSecret
						if req.HasBasicAuth {
							secret = req.BasicSecret
						}
						if req.ClientID != clientID || secret != clientSecret {
							env.Ledger.Append(checks.Failure(
								CheckClientCredentialsAuth,
								"Client credentials grant",
								"the pre-provisioned client id and secret",
								fmt.Sprintf("client_id %q with a wrong or missing secret", req.ClientID),
								checks.RefOAuth21,
							))
							return &mockauth.ErrorResponse{Code: "invalid_client",
								Description: "unknown client or bad secret", HTTPStatus: 401}
						}
						env.Ledger.Append(checks.Success(
							CheckClientCredentialsAuth,
							"Client credentials grant",
							"client authenticated the client_credentials grant with the provisioned secret",
							checks.RefOAuth21,
						))
						return nil
					},
				},
			}

			pair, err := startPair(ctx, env, authOpts,
				mockresource.Options{RequiredScopes: []string{"mcp:tools"}})
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(map[string]string{
				"client_id":     clientID,
				"client_secret": clientSecret,
			}), nil
		},
	}
}

// jwtBearer hands the client a private key out-of-band; the client must
// present a jwt-bearer assertion signed with it at the token endpoint.
func jwtBearer() harness.Definition {
	return harness.Definition{
		Name:        "extensions/jwt-bearer",
		Description: "Token request carrying a signed jwt-bearer assertion instead of a code.",
		Suites:      []string{harness.SuiteExtensions, harness.SuiteActive},
		ExpectedChecks: []string{
			mockresource.CheckPRMPathBasedRequested,
			mockauth.CheckAuthorizationServerMetadata,
			mockauth.CheckTokenRequest,
			CheckJWTBearerAssertion,
		},
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return nil, fmt.Errorf("generate assertion key: %w", err)
			}
			keyPEM := pem.EncodeToMemory(&pem.Block{
				Type:  "RSA PRIVATE KEY",
				Bytes: x509.MarshalPKCS1PrivateKey(key),
			})
			clientID := "jwt-client-" + uuid.NewString()

			authOpts := mockauth.Options{
				DisableRegistration: true,
				GrantTypesSupported: []string{mockauth.GrantJWTBearer},
				Hooks: mockauth.Hooks{
					OnTokenRequest: func(req *mockauth.TokenRequest, grant *mockauth.TokenGrant) *mockauth.ErrorResponse {
						if req.GrantType != mockauth.GrantJWTBearer {
							return nil
						}
						if veto := verifyAssertion(env, req.Assertion, clientID, &key.PublicKey); veto != nil {
							return veto
						}
						grant.Subject = clientID
						return nil
					},
				},
			}

			pair, err := startPair(ctx, env, authOpts,
				mockresource.Options{RequiredScopes: []string{"mcp:tools"}})
			if err != nil {
				return nil, err
			}
			env.SetStash(pair)
			return pair.urls(map[string]string{
				"client_id":          clientID,
				"assertion_key_pem":  string(keyPEM),
				"assertion_audience": pair.auth.Issuer(),
			}), nil
		},
	}
}

// verifyAssertion validates a jwt-bearer assertion against the key handed
// to the client: RS256 signature, iss and sub naming the provisioned
// client.
func verifyAssertion(env *harness.Env, assertion, clientID string, pub *rsa.PublicKey) *mockauth.ErrorResponse {
	if assertion == "" {
		env.Ledger.Append(checks.Failure(
			CheckJWTBearerAssertion,
			"JWT bearer assertion",
			"an assertion parameter on the token request",
			"no assertion",
			checks.RefRFC7523,
		))
		return &mockauth.ErrorResponse{Code: "invalid_grant", Description: "missing assertion"}
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(assertion, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	})
	if err != nil {
		env.Ledger.Append(checks.Failure(
			CheckJWTBearerAssertion,
			"JWT bearer assertion",
			"an assertion signed with the provisioned key",
			fmt.Sprintf("verification failed: %v", err),
			checks.RefRFC7523,
		))
		return &mockauth.ErrorResponse{Code: "invalid_grant", Description: "assertion verification failed"}
	}
	if claims.Issuer != clientID || claims.Subject != clientID {
		env.Ledger.Append(checks.Failure(
			CheckJWTBearerAssertion,
			"JWT bearer assertion",
			fmt.Sprintf("iss and sub naming the provisioned client %q", clientID),
			fmt.Sprintf("iss=%q sub=%q", claims.Issuer, claims.Subject),
			checks.RefRFC7523,
		))
		return &mockauth.ErrorResponse{Code: "invalid_grant", Description: "assertion names the wrong client"}
	}

	env.Ledger.Append(checks.Success(
		CheckJWTBearerAssertion,
		"JWT bearer assertion",
		"assertion verified against the provisioned key with matching iss and sub",
		checks.RefRFC7523,
	))
	return nil
}

// tokenExchange pre-issues a subject token out-of-band; the client must
// exchange it at the token endpoint with the token-exchange grant.
func tokenExchange() harness.Definition {
	return harness.Definition{
		Name:        "extensions/token-exchange",
		Description: "Pre-issued subject token exchanged for an access token via RFC 8693.",
		Suites:      []string{harness.SuiteExtensions, harness.SuitePending},
		ExpectedChecks: []string{
			mockresource.CheckPRMPathBasedRequested,
			mockauth.CheckAuthorizationServerMetadata,
			mockauth.CheckTokenRequest,
			CheckTokenExchange,
		},
		Setup: func(ctx context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			var pair *serverPair

			authOpts := mockauth.Options{
				DisableRegistration: true,
				GrantTypesSupported: []string{mockauth.GrantTokenExchange},
				Hooks: mockauth.Hooks{
					OnTokenRequest: func(req *mockauth.TokenRequest, grant *mockauth.TokenGrant) *mockauth.ErrorResponse {
						if req.GrantType != mockauth.GrantTokenExchange {
							return nil
						}
						scopes, err := pair.auth.VerifyAccessToken(req.Assertion)
						if err != nil {
							env.Ledger.Append(checks.Failure(
								CheckTokenExchange,
								"Token exchange subject token",
								"the pre-issued subject token",
								fmt.Sprintf("verification failed: %v", err),
								checks.RefRFC8693,
							))
							return &mockauth.ErrorResponse{Code: "invalid_grant",
								Description: "subject_token verification failed"}
						}
						env.Ledger.Append(checks.Success(
							CheckTokenExchange,
							"Token exchange subject token",
							"subject_token verified as the pre-issued token",
							checks.RefRFC8693,
						).WithDetail("subject_token_scopes", scopes))
						return nil
					},
				},
			}

			p, err := startPair(ctx, env, authOpts,
				mockresource.Options{RequiredScopes: []string{"mcp:tools"}})
			if err != nil {
				return nil, err
			}
			pair = p
			env.SetStash(pair)

			subject, err := pair.auth.IssueToken(mockauth.TokenGrant{
				Subject:  "upstream-user",
				ClientID: "upstream-client",
				Scope:    "mcp:tools",
			})
			if err != nil {
				return nil, fmt.Errorf("issue subject token: %w", err)
			}
			return pair.urls(map[string]string{"subject_token": subject}), nil
		},
	}
}
