package refclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChallenge(t *testing.T) {
	header := `Bearer realm="mcp-conformance", error="insufficient_scope", ` +
		`scope="mcp:read mcp:write", resource_metadata="http://127.0.0.1:9/.well-known/oauth-protected-resource/mcp"`

	ch := ParseChallenge(header)
	assert.Equal(t, "Bearer", ch.Scheme)
	assert.Equal(t, "insufficient_scope", ch.Error)
	assert.Equal(t, "mcp:read mcp:write", ch.Scope)
	assert.Equal(t, "http://127.0.0.1:9/.well-known/oauth-protected-resource/mcp", ch.ResourceMetadata)
}

func TestParseChallengeCommaInsideQuotes(t *testing.T) {
	ch := ParseChallenge(`Bearer error="a,b", scope="s1"`)
	assert.Equal(t, "a,b", ch.Error)
	assert.Equal(t, "s1", ch.Scope)
}

func TestParseChallengeBareSchemeAndEmpty(t *testing.T) {
	assert.Equal(t, "Bearer", ParseChallenge("Bearer").Scheme)
	assert.Equal(t, "", ParseChallenge("").Scheme)
}

func TestCanonicalResource(t *testing.T) {
	assert.Equal(t, canonicalResource("http://Example.COM:80/mcp"), canonicalResource("http://example.com/mcp"))
	assert.Equal(t, canonicalResource("https://example.com:443/"), canonicalResource("https://example.com"))
	assert.NotEqual(t, canonicalResource("http://example.com/mcp"), canonicalResource("http://example.com/other"))
	assert.NotEqual(t, canonicalResource("http://example.com:8080/mcp"), canonicalResource("http://example.com/mcp"))
}

func TestUnionScopes(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, unionScopes([]string{"a", "b"}, []string{"b", "c"}))
	assert.Nil(t, unionScopes(nil, nil))
}

func TestScopeKeyOrderInsensitive(t *testing.T) {
	assert.Equal(t, scopeKey([]string{"b", "a"}), scopeKey([]string{"a", "b"}))
	assert.NotEqual(t, scopeKey([]string{"a"}), scopeKey([]string{"a", "b"}))
}
