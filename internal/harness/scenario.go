package harness

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mcpconformance-go/internal/checks"
)

// State is the lifecycle state of a scenario instance.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateRunning    State = "RUNNING"
	StateStopped    State = "STOPPED"
)

// ScenarioURLs is what a started scenario hands to the client-under-test:
// the endpoint to connect to plus an opaque context bag (client id, keys,
// tenant) delivered out-of-band.
type ScenarioURLs struct {
	ServerURL string            `json:"serverUrl"`
	Context   map[string]string `json:"context,omitempty"`
}

// Scenario is the unit of test: one or two mock servers plus a private
// check ledger behind a start/stop/checks lifecycle.
type Scenario interface {
	Name() string
	Description() string

	// Start allocates mock servers and returns the externally reachable
	// endpoint plus context.
	Start(ctx context.Context) (*ScenarioURLs, error)

	// Stop closes servers in reverse dependency order. Safe to call twice
	// and safe after a partial Start.
	Stop() error

	// Checks returns the ledger after backfilling one FAILURE per
	// expected-but-unobserved check ID. Idempotent on read after Stop.
	Checks() []checks.Check

	// AllowClientError reports whether a non-zero adapter outcome is
	// expected for this scenario and must not itself fail the run.
	AllowClientError() bool
}

// Env is the per-instance environment a scenario definition builds into:
// the private ledger plus the set of managed server lifecycles.
type Env struct {
	Ledger *checks.Ledger
	Logger *zap.Logger

	mu      sync.Mutex
	servers []*ServerLifecycle
	stash   any
}

// SetStash stores scenario-private state built during Setup so Finalize
// can reach it. One value per instance.
func (e *Env) SetStash(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stash = v
}

// Stash returns the value stored by SetStash, or nil.
func (e *Env) Stash() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stash
}

// Manage registers a lifecycle so Stop tears it down in reverse
// registration order.
func (e *Env) Manage(s *ServerLifecycle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.servers = append(e.servers, s)
}

func (e *Env) stopAll() error {
	e.mu.Lock()
	servers := make([]*ServerLifecycle, len(e.servers))
	copy(servers, e.servers)
	e.mu.Unlock()

	var firstErr error
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Definition is the static description of a scenario. Instances are created
// per run so suites can execute concurrently without shared state.
type Definition struct {
	// Name is hierarchical and globally unique, e.g. "auth/scope-step-up".
	Name        string
	Description string

	// Suites this scenario belongs to. Every scenario is implicitly part
	// of "all".
	Suites []string

	// AllowClientError marks scenarios whose expected outcome is a client
	// that gives up (e.g. retry-limit loops).
	AllowClientError bool

	// ExpectedChecks are the IDs this scenario must observe. Unobserved IDs
	// are backfilled as FAILURE so a client that silently skips a step is
	// flagged instead of producing a vacuously empty report.
	ExpectedChecks []string

	// Setup wires mock servers and hooks, registers lifecycles on the Env,
	// starts them, and returns the client-facing URLs.
	Setup func(ctx context.Context, env *Env) (*ScenarioURLs, error)

	// Finalize, when set, runs once before the first ledger read after the
	// flow has ended. Negative-result checks (an event that must NOT have
	// happened) can only be emitted here, since no positive signal exists.
	Finalize func(env *Env)
}

// instance is a running materialization of a Definition.
type instance struct {
	def    Definition
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	env      *Env
	finalize sync.Once
	report   []checks.Check
}

// NewInstance materializes a definition with a fresh ledger and no servers.
func (d Definition) NewInstance(logger *zap.Logger) Scenario {
	return &instance{
		def:    d,
		state:  StateNotStarted,
		logger: logger.Named("scenario").With(zap.String("scenario", d.Name)),
	}
}

func (s *instance) Name() string           { return s.def.Name }
func (s *instance) Description() string    { return s.def.Description }
func (s *instance) AllowClientError() bool { return s.def.AllowClientError }

func (s *instance) Start(ctx context.Context) (*ScenarioURLs, error) {
	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("scenario %q cannot start from state %s", s.def.Name, state)
	}
	s.env = &Env{Ledger: checks.NewLedger(), Logger: s.logger}
	s.state = StateRunning
	s.mu.Unlock()

	urls, err := s.def.Setup(ctx, s.env)
	if err != nil {
		// Release whatever was bound before the failure.
		_ = s.env.stopAll()
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return nil, fmt.Errorf("scenario %q setup failed: %w", s.def.Name, err)
	}

	s.logger.Debug("scenario started", zap.String("server_url", urls.ServerURL))
	return urls, nil
}

func (s *instance) Stop() error {
	s.mu.Lock()
	env := s.env
	s.state = StateStopped
	s.mu.Unlock()

	if env == nil {
		return nil
	}
	return env.stopAll()
}

func (s *instance) Checks() []checks.Check {
	s.mu.Lock()
	env := s.env
	s.mu.Unlock()

	if env == nil {
		return nil
	}

	s.finalize.Do(func() {
		if s.def.Finalize != nil {
			s.def.Finalize(env)
		}
		report := env.Ledger.Snapshot()
		for _, id := range s.def.ExpectedChecks {
			if env.Ledger.Observed(id) {
				continue
			}
			report = append(report, checks.Failure(
				id,
				"Expected conformance step not observed",
				fmt.Sprintf("client to exercise the step asserted by %q", id),
				"no matching request reached the mock servers",
			))
		}
		s.mu.Lock()
		s.report = report
		s.mu.Unlock()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]checks.Check, len(s.report))
	copy(out, s.report)
	return out
}
