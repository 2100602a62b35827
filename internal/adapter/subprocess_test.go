package adapter

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcpconformance-go/internal/harness"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based test")
	}
}

func TestBuildArgsSubstitution(t *testing.T) {
	s := NewSubprocess("client", []string{"--url", "{{serverUrl}}"}, 0, zaptest.NewLogger(t))
	assert.Equal(t, []string{"--url", "http://x/mcp"}, s.buildArgs("http://x/mcp"))

	s = NewSubprocess("client", []string{"--flag"}, 0, zaptest.NewLogger(t))
	assert.Equal(t, []string{"--flag", "http://x/mcp"}, s.buildArgs("http://x/mcp"))
}

func TestDefaultTimeoutFallback(t *testing.T) {
	s := NewSubprocess("client", nil, 0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultScenarioTimeout, s.Timeout)

	p := NewInProcess(0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultScenarioTimeout, p.Timeout)

	assert.Less(t, DefaultSuiteTimeout, DefaultScenarioTimeout)
}

func TestSubprocessExitCode(t *testing.T) {
	requireUnix(t)
	s := NewSubprocess("sh", []string{"-c", "exit 3", "{{serverUrl}}"}, time.Minute, zaptest.NewLogger(t))

	out, err := s.Execute(context.Background(), "test", &harness.ScenarioURLs{ServerURL: "http://x/mcp"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.False(t, out.TimedOut)
	assert.True(t, out.Failed())
}

func TestSubprocessCapturesOutputAndEnv(t *testing.T) {
	requireUnix(t)
	s := NewSubprocess("sh",
		[]string{"-c", `printf '%s' "$MCP_CONFORMANCE_SERVER_URL"; printf '%s' "$MCP_CONFORMANCE_CONTEXT" >&2`, "{{serverUrl}}"},
		time.Minute, zaptest.NewLogger(t))

	urls := &harness.ScenarioURLs{
		ServerURL: "http://127.0.0.1:9/mcp",
		Context:   map[string]string{"client_id": "c1"},
	}
	out, err := s.Execute(context.Background(), "test", urls)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "http://127.0.0.1:9/mcp", string(out.Stdout))
	assert.JSONEq(t, `{"client_id":"c1"}`, string(out.Stderr))
}

func TestSubprocessTimeout(t *testing.T) {
	requireUnix(t)
	s := NewSubprocess("sh", []string{"-c", "sleep 5", "{{serverUrl}}"}, 200*time.Millisecond, zaptest.NewLogger(t))

	out, err := s.Execute(context.Background(), "test", &harness.ScenarioURLs{ServerURL: "http://x/mcp"})
	require.NoError(t, err)
	assert.True(t, out.TimedOut)
	assert.True(t, out.Failed())
}

func TestSubprocessMissingBinary(t *testing.T) {
	s := NewSubprocess("definitely-not-a-real-binary-8f2a", nil, time.Minute, zaptest.NewLogger(t))
	_, err := s.Execute(context.Background(), "test", &harness.ScenarioURLs{ServerURL: "http://x/mcp"})
	assert.Error(t, err)
}
