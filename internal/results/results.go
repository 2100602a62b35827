// Package results persists run artifacts: one directory per scenario
// with the check ledger and captured client output, a run summary, and a
// bbolt index of past runs.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"mcpconformance-go/internal/runner"
	"mcpconformance-go/internal/truncate"
)

// Writer lays out one run under <root>/<runID>/.
type Writer struct {
	Root string

	logger *zap.Logger
}

func NewWriter(root string, logger *zap.Logger) *Writer {
	return &Writer{Root: root, logger: logger.Named("results")}
}

// WriteSuite persists every scenario of the run plus a summary document.
func (w *Writer) WriteSuite(res *runner.SuiteResult) (string, error) {
	runDir := filepath.Join(w.Root, res.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}

	for i := range res.Results {
		if err := w.writeScenario(runDir, &res.Results[i]); err != nil {
			return "", err
		}
	}

	if err := writeJSONFile(filepath.Join(runDir, "summary.json"), res); err != nil {
		return "", err
	}
	w.logger.Info("run persisted", zap.String("dir", runDir))
	return runDir, nil
}

// WriteScenario persists a single-scenario run in the same layout.
func (w *Writer) WriteScenario(runID string, res *runner.ScenarioResult) (string, error) {
	runDir := filepath.Join(w.Root, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := w.writeScenario(runDir, res); err != nil {
		return "", err
	}
	return runDir, nil
}

func (w *Writer) writeScenario(runDir string, res *runner.ScenarioResult) error {
	dir := filepath.Join(runDir, scenarioSlug(res.Scenario))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create scenario directory: %w", err)
	}

	if err := writeJSONFile(filepath.Join(dir, "checks.json"), res.Checks); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(dir, "result.json"), res); err != nil {
		return err
	}
	if res.Outcome != nil {
		if len(res.Outcome.Stdout) > 0 {
			out := truncate.Clamp(res.Outcome.Stdout, truncate.DefaultLimit)
			if err := os.WriteFile(filepath.Join(dir, "stdout.log"), out, 0o644); err != nil {
				return fmt.Errorf("failed to write stdout log: %w", err)
			}
		}
		if len(res.Outcome.Stderr) > 0 {
			out := truncate.Clamp(res.Outcome.Stderr, truncate.DefaultLimit)
			if err := os.WriteFile(filepath.Join(dir, "stderr.log"), out, 0o644); err != nil {
				return fmt.Errorf("failed to write stderr log: %w", err)
			}
		}
	}
	return nil
}

// scenarioSlug turns "auth/scope-step-up" into a filesystem-safe name.
func scenarioSlug(name string) string {
	return strings.ReplaceAll(name, "/", "__")
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
