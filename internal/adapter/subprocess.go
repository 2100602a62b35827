package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mcpconformance-go/internal/harness"
)

const gracefulShutdownWait = 5 * time.Second

// Subprocess runs an external client command per scenario. The server
// URL replaces a {{serverUrl}} placeholder in the arguments, or is
// appended when no placeholder is present; it is also exported in the
// environment along with the scenario name and context bag.
type Subprocess struct {
	Command string
	Args    []string
	Timeout time.Duration

	logger *zap.Logger
}

// NewSubprocess builds a subprocess strategy for the given command line.
func NewSubprocess(command string, args []string, timeout time.Duration, logger *zap.Logger) *Subprocess {
	if timeout <= 0 {
		timeout = DefaultScenarioTimeout
	}
	return &Subprocess{
		Command: command,
		Args:    args,
		Timeout: timeout,
		logger:  logger.Named("adapter.subprocess"),
	}
}

func (s *Subprocess) Execute(ctx context.Context, scenarioName string, urls *harness.ScenarioURLs) (*Outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	args := s.buildArgs(urls.ServerURL)
	cmd := exec.CommandContext(runCtx, s.Command, args...)
	cmd.Env = append(os.Environ(),
		EnvServerURL+"="+urls.ServerURL,
		EnvScenarioName+"="+scenarioName,
	)
	if len(urls.Context) > 0 {
		contextJSON, err := json.Marshal(urls.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scenario context: %w", err)
		}
		cmd.Env = append(cmd.Env, EnvContext+"="+string(contextJSON))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// SIGTERM first so the client can flush its own logs; SIGKILL comes
	// from the context after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = gracefulShutdownWait

	s.logger.Debug("launching client",
		zap.String("command", s.Command),
		zap.Strings("args", args),
		zap.String("scenario", scenarioName))

	start := time.Now()
	err := cmd.Run()
	outcome := &Outcome{
		Duration: time.Since(start),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}

	switch {
	case err == nil:
	case runCtx.Err() == context.DeadlineExceeded:
		outcome.TimedOut = true
		outcome.ExitCode = -1
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run client command %q: %w", s.Command, err)
		}
		outcome.ExitCode = exitErr.ExitCode()
	}

	s.logger.Debug("client finished",
		zap.Int("exit_code", outcome.ExitCode),
		zap.Bool("timed_out", outcome.TimedOut),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

// buildArgs substitutes the {{serverUrl}} placeholder, appending the URL
// as the final argument when the template never mentions it.
func (s *Subprocess) buildArgs(serverURL string) []string {
	args := make([]string, len(s.Args))
	substituted := false
	for i, a := range s.Args {
		if strings.Contains(a, "{{serverUrl}}") {
			a = strings.ReplaceAll(a, "{{serverUrl}}", serverURL)
			substituted = true
		}
		args[i] = a
	}
	if !substituted {
		args = append(args, serverURL)
	}
	return args
}
