// Package runner executes scenarios end to end: start servers, drive the
// client through the adapter, collect the ledger, apply the baseline and
// render a verdict.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"mcpconformance-go/internal/adapter"
	"mcpconformance-go/internal/baseline"
	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/harness"
)

// Verdict is the per-scenario outcome after baseline application.
type Verdict string

const (
	VerdictPass         Verdict = "PASS"
	VerdictFail         Verdict = "FAIL"
	VerdictExpectedFail Verdict = "EXPECTED_FAIL"
	VerdictError        Verdict = "ERROR"
)

// ScenarioResult is one executed scenario with its evidence.
type ScenarioResult struct {
	Scenario    string          `json:"scenario"`
	Description string          `json:"description"`
	Verdict     Verdict         `json:"verdict"`
	Checks      []checks.Check  `json:"checks"`
	Outcome     *adapter.Outcome `json:"outcome,omitempty"`
	FailingIDs  []string        `json:"failingIds,omitempty"`
	Error       string          `json:"error,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// SuiteResult aggregates one run.
type SuiteResult struct {
	RunID     string           `json:"runId"`
	Suite     string           `json:"suite"`
	StartedAt time.Time        `json:"startedAt"`
	Duration  time.Duration    `json:"duration"`
	Results   []ScenarioResult `json:"results"`

	Passed         int `json:"passed"`
	Failed         int `json:"failed"`
	ExpectedFailed int `json:"expectedFailed"`
	Errored        int `json:"errored"`
}

// Ok reports whether the run as a whole passes.
func (s *SuiteResult) Ok() bool {
	return s.Failed == 0 && s.Errored == 0
}

// Runner drives scenarios with a fixed adapter strategy and baseline.
type Runner struct {
	Registry    *harness.Registry
	Strategy    adapter.Strategy
	Baseline    *baseline.Baseline
	Concurrency int

	logger *zap.Logger
}

// New builds a runner. A nil baseline means nothing is expected to fail.
func New(registry *harness.Registry, strategy adapter.Strategy, bl *baseline.Baseline, logger *zap.Logger) *Runner {
	if bl == nil {
		bl = baseline.Empty()
	}
	return &Runner{
		Registry:    registry,
		Strategy:    strategy,
		Baseline:    bl,
		Concurrency: 4,
		logger:      logger.Named("runner"),
	}
}

// NewRunID mints a sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// RunScenario executes one scenario by name.
func (r *Runner) RunScenario(ctx context.Context, name string) (*ScenarioResult, error) {
	scenario, err := r.Registry.Get(name, r.logger)
	if err != nil {
		return nil, err
	}
	result := r.execute(ctx, scenario)
	return &result, nil
}

// RunSuite executes every scenario in the suite, up to Concurrency at a
// time. Scenarios are independent by construction (fresh ledgers,
// ephemeral ports), so interleaving is safe.
func (r *Runner) RunSuite(ctx context.Context, suite string) (*SuiteResult, error) {
	defs := r.Registry.Suite(suite)
	if len(defs) == 0 {
		return nil, fmt.Errorf("suite %q matches no scenarios", suite)
	}

	out := &SuiteResult{
		RunID:     NewRunID(),
		Suite:     suite,
		StartedAt: time.Now(),
		Results:   make([]ScenarioResult, len(defs)),
	}

	workers := r.Concurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def harness.Definition) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			scenario, err := r.Registry.Get(def.Name, r.logger)
			if err != nil {
				out.Results[i] = ScenarioResult{Scenario: def.Name, Verdict: VerdictError, Error: err.Error()}
				return
			}
			out.Results[i] = r.execute(ctx, scenario)
		}(i, def)
	}
	wg.Wait()

	for i := range out.Results {
		switch out.Results[i].Verdict {
		case VerdictPass:
			out.Passed++
		case VerdictFail:
			out.Failed++
		case VerdictExpectedFail:
			out.ExpectedFailed++
		case VerdictError:
			out.Errored++
		}
	}
	out.Duration = time.Since(out.StartedAt)
	return out, nil
}

// execute runs one scenario instance through its whole lifecycle.
func (r *Runner) execute(ctx context.Context, scenario harness.Scenario) ScenarioResult {
	start := time.Now()
	result := ScenarioResult{
		Scenario:    scenario.Name(),
		Description: scenario.Description(),
	}

	urls, err := scenario.Start(ctx)
	if err != nil {
		result.Verdict = VerdictError
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if err := scenario.Stop(); err != nil {
			r.logger.Warn("scenario teardown failed",
				zap.String("scenario", scenario.Name()), zap.Error(err))
		}
	}()

	outcome, err := r.Strategy.Execute(ctx, scenario.Name(), urls)
	if err != nil {
		result.Verdict = VerdictError
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	result.Outcome = outcome

	// Teardown before reading checks so Finalize sees the finished flow.
	if err := scenario.Stop(); err != nil {
		r.logger.Warn("scenario teardown failed",
			zap.String("scenario", scenario.Name()), zap.Error(err))
	}
	result.Checks = scenario.Checks()
	result.FailingIDs = failingIDs(result.Checks)
	result.Verdict = r.verdict(scenario, result.FailingIDs, outcome)
	result.Duration = time.Since(start)

	r.logger.Info("scenario finished",
		zap.String("scenario", scenario.Name()),
		zap.String("verdict", string(result.Verdict)),
		zap.Int("checks", len(result.Checks)))
	return result
}

// verdict applies the policy: any FAILURE or WARNING check fails the
// scenario, as does an abnormal client outcome unless the scenario
// expects one. Fully baselined failures downgrade to EXPECTED_FAIL.
func (r *Runner) verdict(scenario harness.Scenario, failing []string, outcome *adapter.Outcome) Verdict {
	clientFailed := outcome != nil && outcome.Failed() && !scenario.AllowClientError()

	if len(failing) == 0 && !clientFailed {
		return VerdictPass
	}
	if len(failing) > 0 && !clientFailed && r.Baseline.Allows(scenario.Name(), failing) {
		return VerdictExpectedFail
	}
	return VerdictFail
}

// failingIDs collects the distinct IDs of FAILURE and WARNING checks.
func failingIDs(list []checks.Check) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range list {
		if c.Status != checks.StatusFailure && c.Status != checks.StatusWarning {
			continue
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c.ID)
	}
	return out
}
