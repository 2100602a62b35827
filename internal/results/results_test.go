package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcpconformance-go/internal/adapter"
	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/runner"
)

func sampleSuite(runID string) *runner.SuiteResult {
	return &runner.SuiteResult{
		RunID:     runID,
		Suite:     "auth",
		StartedAt: time.Now().UTC(),
		Passed:    1,
		Failed:    1,
		Results: []runner.ScenarioResult{
			{
				Scenario: "auth/basic-dcr",
				Verdict:  runner.VerdictPass,
				Checks: []checks.Check{
					checks.Success("token-request", "Token request", "token issued"),
				},
				Outcome: &adapter.Outcome{
					ExitCode: 0,
					Stdout:   []byte("client stdout\n"),
					Stderr:   []byte("client stderr\n"),
				},
			},
			{
				Scenario:   "auth/scope-step-up",
				Verdict:    runner.VerdictFail,
				FailingIDs: []string{"scope-step-up"},
				Checks: []checks.Check{
					checks.Failure("scope-step-up", "Scope step-up", "second authorization", "none seen"),
				},
			},
		},
	}
}

func TestWriteSuiteLayout(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zaptest.NewLogger(t))

	runDir, err := w.WriteSuite(sampleSuite("01TESTRUN"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "01TESTRUN"), runDir)

	// Scenario names become filesystem-safe directory slugs.
	passDir := filepath.Join(runDir, "auth__basic-dcr")
	assert.FileExists(t, filepath.Join(passDir, "checks.json"))
	assert.FileExists(t, filepath.Join(passDir, "result.json"))
	assert.FileExists(t, filepath.Join(passDir, "stdout.log"))
	assert.FileExists(t, filepath.Join(passDir, "stderr.log"))

	// No captured output means no log files.
	failDir := filepath.Join(runDir, "auth__scope-step-up")
	assert.FileExists(t, filepath.Join(failDir, "checks.json"))
	assert.NoFileExists(t, filepath.Join(failDir, "stdout.log"))

	var summary runner.SuiteResult
	data, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "01TESTRUN", summary.RunID)
	assert.Len(t, summary.Results, 2)

	stdout, err := os.ReadFile(filepath.Join(passDir, "stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "client stdout\n", string(stdout))
}

func TestWriteScenario(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, zaptest.NewLogger(t))

	res := sampleSuite("01SINGLE").Results[0]
	runDir, err := w.WriteScenario("01SINGLE", &res)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(runDir, "auth__basic-dcr", "result.json"))
}

func TestIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	idx, err := OpenIndex(path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	// ULIDs sort chronologically, so lexical key order is run order.
	for i, runID := range []string{"01AAA", "01BBB", "01CCC"} {
		suite := sampleSuite(runID)
		suite.Failed = i
		require.NoError(t, idx.Record(suite, "/tmp/"+runID))
	}

	recent, err := idx.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "01CCC", recent[0].RunID)
	assert.Equal(t, "01BBB", recent[1].RunID)

	rec, err := idx.Get("01AAA")
	require.NoError(t, err)
	assert.Equal(t, "auth", rec.Suite)
	assert.Equal(t, "/tmp/01AAA", rec.Dir)

	_, err = idx.Get("01ZZZ")
	assert.Error(t, err)
}

func TestOpenIndexCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested-does-not-exist.db")
	idx, err := OpenIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	assert.FileExists(t, path)
}
