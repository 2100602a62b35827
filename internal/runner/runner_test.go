package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcpconformance-go/internal/adapter"
	"mcpconformance-go/internal/baseline"
	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
)

// fakeStrategy returns a canned outcome and optionally emits checks into
// the scenario ledger, standing in for a real client run.
type fakeStrategy struct {
	outcome adapter.Outcome
	err     error
}

func (f *fakeStrategy) Execute(_ context.Context, _ string, _ *harness.ScenarioURLs) (*adapter.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.outcome
	return &out, nil
}

func passingDef(name string, suites ...string) harness.Definition {
	return harness.Definition{
		Name:   name,
		Suites: suites,
		Setup: func(_ context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			env.Ledger.Append(checks.Success("step-one", "Step one", "ok"))
			return &harness.ScenarioURLs{ServerURL: "http://127.0.0.1:9/mcp"}, nil
		},
	}
}

func failingDef(name string) harness.Definition {
	return harness.Definition{
		Name:   name,
		Suites: []string{"auth"},
		Setup: func(_ context.Context, env *harness.Env) (*harness.ScenarioURLs, error) {
			env.Ledger.Append(checks.Failure("step-bad", "Step bad", "pass", "failed"))
			return &harness.ScenarioURLs{ServerURL: "http://127.0.0.1:9/mcp"}, nil
		},
	}
}

func newRunner(t *testing.T, strategy adapter.Strategy, bl *baseline.Baseline, defs ...harness.Definition) *Runner {
	t.Helper()
	registry, err := harness.NewRegistry(defs...)
	require.NoError(t, err)
	return New(registry, strategy, bl, zaptest.NewLogger(t))
}

func TestVerdictPass(t *testing.T) {
	r := newRunner(t, &fakeStrategy{}, nil, passingDef("core/ok", "core"))

	res, err := r.RunScenario(context.Background(), "core/ok")
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, res.Verdict)
	assert.Empty(t, res.FailingIDs)
	require.NotNil(t, res.Outcome)
	assert.False(t, res.Outcome.Failed())
}

func TestVerdictFailOnFailingCheck(t *testing.T) {
	r := newRunner(t, &fakeStrategy{}, nil, failingDef("auth/bad"))

	res, err := r.RunScenario(context.Background(), "auth/bad")
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, res.Verdict)
	assert.Equal(t, []string{"step-bad"}, res.FailingIDs)
}

func TestVerdictFailOnClientExit(t *testing.T) {
	r := newRunner(t, &fakeStrategy{outcome: adapter.Outcome{ExitCode: 2}}, nil, passingDef("core/ok", "core"))

	res, err := r.RunScenario(context.Background(), "core/ok")
	require.NoError(t, err)
	assert.Equal(t, VerdictFail, res.Verdict)
}

func TestAllowClientErrorToleratesNonzeroExit(t *testing.T) {
	def := passingDef("auth/give-up", "auth")
	def.AllowClientError = true
	r := newRunner(t, &fakeStrategy{outcome: adapter.Outcome{ExitCode: 1}}, nil, def)

	res, err := r.RunScenario(context.Background(), "auth/give-up")
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, res.Verdict)
}

func TestBaselineDowngradesToExpectedFail(t *testing.T) {
	bl := &baseline.Baseline{ExpectedFailures: map[string][]string{
		"auth/bad": {"step-bad"},
	}}
	r := newRunner(t, &fakeStrategy{}, bl, failingDef("auth/bad"))

	res, err := r.RunScenario(context.Background(), "auth/bad")
	require.NoError(t, err)
	assert.Equal(t, VerdictExpectedFail, res.Verdict)
}

func TestVerdictErrorOnStrategyFailure(t *testing.T) {
	r := newRunner(t, &fakeStrategy{err: assert.AnError}, nil, passingDef("core/ok", "core"))

	res, err := r.RunScenario(context.Background(), "core/ok")
	require.NoError(t, err)
	assert.Equal(t, VerdictError, res.Verdict)
	assert.NotEmpty(t, res.Error)
}

func TestRunSuiteTallies(t *testing.T) {
	bl := &baseline.Baseline{ExpectedFailures: map[string][]string{
		"auth/expected": {"step-bad"},
	}}
	expected := failingDef("auth/expected")
	r := newRunner(t, &fakeStrategy{}, bl,
		passingDef("core/ok", "core"),
		failingDef("auth/bad"),
		expected,
	)
	r.Concurrency = 2

	res, err := r.RunSuite(context.Background(), harness.SuiteAll)
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.ExpectedFailed)
	assert.False(t, res.Ok())
	assert.NotEmpty(t, res.RunID)

	// Results keep registration order despite concurrent execution.
	assert.Equal(t, "core/ok", res.Results[0].Scenario)
	assert.Equal(t, "auth/bad", res.Results[1].Scenario)
}

func TestRunSuiteUnknown(t *testing.T) {
	r := newRunner(t, &fakeStrategy{}, nil, passingDef("core/ok", "core"))
	_, err := r.RunSuite(context.Background(), "no-such-suite")
	assert.Error(t, err)
}
