package baseline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllows(t *testing.T) {
	b := &Baseline{ExpectedFailures: map[string][]string{
		"auth/basic-dcr": {"pkce-s256", "token-request"},
		"auth/prm-root":  {"*"},
		"*":              {"mcp-tools-call"},
	}}

	assert.True(t, b.Allows("auth/basic-dcr", nil))
	assert.True(t, b.Allows("auth/basic-dcr", []string{"pkce-s256"}))
	assert.True(t, b.Allows("auth/basic-dcr", []string{"pkce-s256", "token-request"}))
	assert.False(t, b.Allows("auth/basic-dcr", []string{"pkce-s256", "client-registration"}))

	// Per-scenario wildcard swallows anything.
	assert.True(t, b.Allows("auth/prm-root", []string{"whatever"}))

	// Global entries apply to every scenario.
	assert.True(t, b.Allows("core/initialize", []string{"mcp-tools-call"}))
	assert.False(t, b.Allows("core/initialize", []string{"mcp-initialize"}))
}

func TestEmptyAllowsNothing(t *testing.T) {
	b := Empty()
	assert.True(t, b.Allows("any", nil))
	assert.False(t, b.Allows("any", []string{"x"}))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.yaml")
	content := `expected_failures:
  auth/basic-dcr:
    - pkce-s256
  "*":
    - mcp-tools-call
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := Load(path)
	require.NoError(t, err)
	assert.True(t, b.Allows("auth/basic-dcr", []string{"pkce-s256", "mcp-tools-call"}))
	assert.False(t, b.Allows("auth/basic-dcr", []string{"token-request"}))
	assert.ElementsMatch(t, []string{"auth/basic-dcr", "*"}, b.Scenarios())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b := Empty()
	b.Set("auth/basic-dcr", []string{"pkce-s256"})
	b.Set("auth/prm-root", []string{"x"})
	b.Set("auth/prm-root", nil) // removes the entry

	path := filepath.Join(t.TempDir(), "baseline.yaml")
	require.NoError(t, b.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth/basic-dcr"}, loaded.Scenarios())
	assert.True(t, loaded.Allows("auth/basic-dcr", []string{"pkce-s256"}))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
