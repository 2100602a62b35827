package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpconformance-go/internal/adapter"
	"mcpconformance-go/internal/baseline"
	"mcpconformance-go/internal/results"
	"mcpconformance-go/internal/runner"
	"mcpconformance-go/internal/scenarios"
)

func newClientCommand() *cobra.Command {
	var (
		scenarioName  string
		suite         string
		clientCommand string
		clientArgs    []string
		baselinePath  string
		writeBaseline string
		outputDir     string
		timeout       time.Duration
		concurrency   int
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run conformance scenarios against an MCP client",
		Long: `Runs each scenario by standing up disposable mock servers, launching
the client under test against them, and grading the observed requests.
Without --command the bundled reference client runs in-process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := setupLogger()
			if err != nil {
				return exitWith(ExitCodeConfigError, "%v", err)
			}
			defer func() { _ = logger.Sync() }()

			registry, err := scenarios.NewRegistry()
			if err != nil {
				return exitWith(ExitCodeGeneralError, "failed to build scenario registry: %w", err)
			}

			bl := baseline.Empty()
			if baselinePath != "" {
				bl, err = baseline.Load(baselinePath)
				if err != nil {
					return exitWith(ExitCodeConfigError, "%v", err)
				}
				logger.Info("baseline loaded", zap.String("path", baselinePath))
			}

			if timeout <= 0 {
				if scenarioName != "" {
					timeout = adapter.DefaultScenarioTimeout
				} else {
					timeout = adapter.DefaultSuiteTimeout
				}
			}

			var strategy adapter.Strategy
			if clientCommand != "" {
				strategy = adapter.NewSubprocess(clientCommand, clientArgs, timeout, logger)
			} else {
				strategy = adapter.NewInProcess(timeout, logger)
			}

			r := runner.New(registry, strategy, bl, logger)
			r.Concurrency = concurrency

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var suiteResult *runner.SuiteResult
			if scenarioName != "" {
				res, err := r.RunScenario(ctx, scenarioName)
				if err != nil {
					return exitWith(ExitCodeConfigError, "%v", err)
				}
				suiteResult = singleScenarioSuite(res, scenarioName)
			} else {
				suiteResult, err = r.RunSuite(ctx, suite)
				if err != nil {
					return exitWith(ExitCodeConfigError, "%v", err)
				}
			}

			writer := results.NewWriter(outputDir, logger)
			runDir, err := writer.WriteSuite(suiteResult)
			if err != nil {
				return exitWith(ExitCodeGeneralError, "failed to persist results: %w", err)
			}
			if err := recordRun(outputDir, suiteResult, runDir, logger); err != nil {
				logger.Warn("failed to record run in index", zap.Error(err))
			}

			if writeBaseline != "" {
				if err := snapshotBaseline(writeBaseline, suiteResult); err != nil {
					return exitWith(ExitCodeGeneralError, "%v", err)
				}
				logger.Info("baseline written", zap.String("path", writeBaseline))
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(suiteResult); err != nil {
					return exitWith(ExitCodeGeneralError, "failed to encode results: %w", err)
				}
			} else {
				printSummary(suiteResult, runDir)
			}

			if !suiteResult.Ok() {
				return exitWith(ExitCodeConformanceFailure, "%d scenario(s) failed, %d errored",
					suiteResult.Failed, suiteResult.Errored)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioName, "scenario", "", "Run a single scenario by name")
	cmd.Flags().StringVar(&suite, "suite", "all", "Suite to run (all, core, auth, extensions)")
	cmd.Flags().StringVar(&clientCommand, "command", "", "Client command to execute per scenario (default: bundled reference client)")
	cmd.Flags().StringArrayVar(&clientArgs, "arg", nil, "Client command argument; {{serverUrl}} is substituted (repeatable)")
	cmd.Flags().StringVar(&baselinePath, "baseline", "", "Baseline file of expected failures")
	cmd.Flags().StringVar(&writeBaseline, "write-baseline", "", "Write the run's failures to this file as a new baseline")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "conformance-results", "Directory for run artifacts")
	cmd.Flags().DurationVar(&timeout, "timeout", 0,
		fmt.Sprintf("Per-scenario client timeout (default %s for a suite, %s for a single scenario)",
			adapter.DefaultSuiteTimeout, adapter.DefaultScenarioTimeout))
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Scenarios executed in parallel")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the full run result as JSON on stdout")

	return cmd
}

// singleScenarioSuite wraps one scenario result in the suite shape so
// persistence and reporting stay uniform.
func singleScenarioSuite(res *runner.ScenarioResult, name string) *runner.SuiteResult {
	out := &runner.SuiteResult{
		RunID:     runner.NewRunID(),
		Suite:     name,
		StartedAt: time.Now().Add(-res.Duration),
		Duration:  res.Duration,
		Results:   []runner.ScenarioResult{*res},
	}
	switch res.Verdict {
	case runner.VerdictPass:
		out.Passed = 1
	case runner.VerdictFail:
		out.Failed = 1
	case runner.VerdictExpectedFail:
		out.ExpectedFailed = 1
	default:
		out.Errored = 1
	}
	return out
}

// snapshotBaseline captures the run's failing checks so a later run can
// treat them as expected. Scenarios that errored are left out: an ERROR
// is a harness or environment problem, not a known client gap.
func snapshotBaseline(path string, res *runner.SuiteResult) error {
	bl := baseline.Empty()
	for _, sr := range res.Results {
		if sr.Verdict != runner.VerdictFail && sr.Verdict != runner.VerdictExpectedFail {
			continue
		}
		bl.Set(sr.Scenario, sr.FailingIDs)
	}
	return bl.Save(path)
}

func recordRun(outputDir string, res *runner.SuiteResult, runDir string, logger *zap.Logger) error {
	index, err := results.OpenIndex(filepath.Join(outputDir, "runs.db"))
	if err != nil {
		return err
	}
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("failed to close run index", zap.Error(err))
		}
	}()
	return index.Record(res, runDir)
}

func printSummary(res *runner.SuiteResult, runDir string) {
	fmt.Printf("Run %s (%s)\n\n", res.RunID, res.Suite)
	for _, sr := range res.Results {
		fmt.Printf("  %-14s %s\n", sr.Verdict, sr.Scenario)
		if sr.Error != "" {
			fmt.Printf("                 error: %s\n", sr.Error)
		}
		for _, id := range sr.FailingIDs {
			fmt.Printf("                 failing: %s\n", id)
		}
	}
	fmt.Printf("\n%d passed, %d failed, %d expected failures, %d errored (%.1fs)\n",
		res.Passed, res.Failed, res.ExpectedFailed, res.Errored, res.Duration.Seconds())
	fmt.Printf("Artifacts: %s\n", runDir)
}
