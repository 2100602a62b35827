// Package adapter drives the client-under-test against a started
// scenario. Two strategies exist: spawning an external command, and
// running the bundled reference client in-process.
package adapter

import (
	"context"
	"time"

	"mcpconformance-go/internal/harness"
)

// Env variable names handed to subprocess clients. The scenario context
// bag is JSON so arbitrary out-of-band material fits one variable.
const (
	EnvServerURL    = "MCP_CONFORMANCE_SERVER_URL"
	EnvScenarioName = "MCP_CONFORMANCE_SCENARIO"
	EnvContext      = "MCP_CONFORMANCE_CONTEXT"
)

// Default per-execution bounds. Suite runs get the tighter one so a
// single hung client cannot stall the whole run; a single scenario or a
// live-server grading flow gets more room.
const (
	DefaultSuiteTimeout    = 10 * time.Second
	DefaultScenarioTimeout = 30 * time.Second
)

// Outcome is the observable result of one client execution. A timeout
// and a non-zero exit are distinct failure classes: the first means the
// client hung, the second that it gave up.
type Outcome struct {
	ExitCode int           `json:"exitCode"`
	TimedOut bool          `json:"timedOut"`
	Duration time.Duration `json:"duration"`
	Stdout   []byte        `json:"-"`
	Stderr   []byte        `json:"-"`
}

// Failed reports whether the execution ended abnormally.
func (o *Outcome) Failed() bool {
	return o.TimedOut || o.ExitCode != 0
}

// Strategy executes the client-under-test against a scenario's endpoint.
// The returned error covers harness-side problems only; client failures
// are reported through the Outcome.
type Strategy interface {
	Execute(ctx context.Context, scenarioName string, urls *harness.ScenarioURLs) (*Outcome, error)
}
