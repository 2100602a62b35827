package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mcpconformance-go/internal/adapter"
	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/mockauth"
	"mcpconformance-go/internal/mockresource"
	"mcpconformance-go/internal/runner"
)

func TestRegistryBuilds(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(r.Names()), 19)
	assert.NotEmpty(t, r.Suite(harness.SuiteCore))
	assert.NotEmpty(t, r.Suite(harness.SuiteAuth))
	assert.NotEmpty(t, r.Suite(harness.SuiteExtensions))
}

// The bundled reference client must pass every scenario: it is the
// known-good implementation the catalog is calibrated against.
func TestReferenceClientPassesAllScenarios(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end scenario run")
	}

	logger := zaptest.NewLogger(t)
	registry, err := NewRegistry()
	require.NoError(t, err)

	r := runner.New(registry, adapter.NewInProcess(30*time.Second, logger), nil, logger)
	r.Concurrency = 4

	res, err := r.RunSuite(context.Background(), harness.SuiteAll)
	require.NoError(t, err)

	for _, sr := range res.Results {
		assert.Equal(t, runner.VerdictPass, sr.Verdict,
			"scenario %s: failing=%v error=%s", sr.Scenario, sr.FailingIDs, sr.Error)
	}
	assert.True(t, res.Ok())
	assert.Equal(t, len(res.Results), res.Passed)
}

func runOne(t *testing.T, name string) *runner.ScenarioResult {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry, err := NewRegistry()
	require.NoError(t, err)

	r := runner.New(registry, adapter.NewInProcess(30*time.Second, logger), nil, logger)
	res, err := r.RunScenario(context.Background(), name)
	require.NoError(t, err)
	return res
}

// statusByID reduces the report to the worst status per check ID.
func statusByID(res *runner.ScenarioResult) map[string]checks.Status {
	l := checks.NewLedger()
	for _, c := range res.Checks {
		l.Append(c)
	}
	return l.Summary()
}

func TestBasicDCRProducesFullChain(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end scenario run")
	}

	res := runOne(t, "auth/basic-dcr")
	require.Equal(t, runner.VerdictPass, res.Verdict, "failing=%v error=%s", res.FailingIDs, res.Error)

	byID := statusByID(res)
	for _, id := range []string{
		mockresource.CheckPRMPathBasedRequested,
		mockauth.CheckAuthorizationServerMetadata,
		mockauth.CheckClientRegistration,
		mockauth.CheckAuthorizationRequest,
		mockauth.CheckTokenRequest,
		mockauth.CheckPKCES256,
	} {
		assert.Equal(t, checks.StatusSuccess, byID[id], "check %s", id)
	}
	assert.NotContains(t, byID, mockresource.CheckPRMPriorityOrder)
}

func TestStepUpSatisfied(t *testing.T) {
	base := []string{"mcp:read"}
	demanded := []string{"mcp:read", "mcp:write"}

	assert.True(t, stepUpSatisfied([]string{"mcp:read", "mcp:write"}, base, demanded))
	assert.True(t, stepUpSatisfied([]string{"mcp:read", "mcp:write", "mcp:admin"}, base, demanded))

	// Widening with an unrelated scope does not answer the challenge.
	assert.False(t, stepUpSatisfied([]string{"mcp:read", "mcp:unrelated"}, base, demanded))
	// Dropping the original grant is not a step-up.
	assert.False(t, stepUpSatisfied([]string{"mcp:write"}, base, demanded))
	// Re-requesting the same set is not a step-up.
	assert.False(t, stepUpSatisfied([]string{"mcp:read"}, base, demanded))
}

func TestStepUpRequiresSecondAuthorization(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end scenario run")
	}

	res := runOne(t, "auth/scope-step-up")
	require.Equal(t, runner.VerdictPass, res.Verdict, "failing=%v error=%s", res.FailingIDs, res.Error)
	assert.Equal(t, checks.StatusSuccess, statusByID(res)[CheckScopeStepUp])
}

func TestRetryLimitExpectsClientGiveUp(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end scenario run")
	}

	res := runOne(t, "auth/scope-retry-limit")
	require.Equal(t, runner.VerdictPass, res.Verdict, "failing=%v error=%s", res.FailingIDs, res.Error)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Failed(), "the client is expected to give up")
	assert.Equal(t, checks.StatusSuccess, statusByID(res)[CheckScopeRetryLimit])
}

func TestResourceMismatchAbortsFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end scenario run")
	}

	res := runOne(t, "auth/resource-mismatch")
	require.Equal(t, runner.VerdictPass, res.Verdict, "failing=%v error=%s", res.FailingIDs, res.Error)
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Failed(), "the client is expected to refuse the flow")
	assert.Equal(t, checks.StatusSuccess, statusByID(res)[CheckResourceMismatch])
}

// A client that skips a step entirely gets the missing checks backfilled
// as failures instead of a vacuously green report.
func TestSilentClientFailsExpectedChecks(t *testing.T) {
	logger := zaptest.NewLogger(t)
	registry, err := NewRegistry()
	require.NoError(t, err)

	scenario, err := registry.Get("auth/basic-dcr", logger)
	require.NoError(t, err)

	_, err = scenario.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, scenario.Stop())

	byID := statusByID(&runner.ScenarioResult{Checks: scenario.Checks()})
	assert.Equal(t, checks.StatusFailure, byID[mockauth.CheckTokenRequest])
	assert.Equal(t, checks.StatusFailure, byID[mockresource.CheckPRMPathBasedRequested])
}
