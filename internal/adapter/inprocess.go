package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcpconformance-go/internal/harness"
	"mcpconformance-go/internal/refclient"
)

// InProcess runs the bundled reference client inside the harness
// process. Useful for self-checking the scenario catalog and as the
// default when no client command is given.
type InProcess struct {
	Timeout time.Duration

	logger *zap.Logger
}

func NewInProcess(timeout time.Duration, logger *zap.Logger) *InProcess {
	if timeout <= 0 {
		timeout = DefaultScenarioTimeout
	}
	return &InProcess{Timeout: timeout, logger: logger.Named("adapter.inprocess")}
}

func (s *InProcess) Execute(ctx context.Context, scenarioName string, urls *harness.ScenarioURLs) (*Outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	start := time.Now()
	err := refclient.New(s.logger, urls.Context).Run(runCtx, urls.ServerURL)
	outcome := &Outcome{Duration: time.Since(start)}

	switch {
	case err == nil:
	case runCtx.Err() == context.DeadlineExceeded:
		outcome.TimedOut = true
		outcome.ExitCode = -1
	default:
		outcome.ExitCode = 1
		outcome.Stderr = []byte(fmt.Sprintf("refclient: %v\n", err))
		s.logger.Debug("reference client failed",
			zap.String("scenario", scenarioName), zap.Error(err))
	}
	return outcome, nil
}
