// Package baseline loads the expected-failure allowlist. A run whose
// only failures are baselined is reported as passing with expected
// failures, so known client gaps do not drown new regressions.
package baseline

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Baseline maps scenario names to the check IDs allowed to fail.
// A "*" entry under a scenario allows any check; a "*" scenario key
// applies to every scenario.
type Baseline struct {
	ExpectedFailures map[string][]string `mapstructure:"expected_failures"`
}

// Empty returns a baseline that allows nothing.
func Empty() *Baseline {
	return &Baseline{ExpectedFailures: map[string][]string{}}
}

// Load reads a baseline file. The format follows the extension (YAML,
// JSON or TOML).
func Load(path string) (*Baseline, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read baseline %s: %w", path, err)
	}

	b := Empty()
	if err := v.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("failed to parse baseline %s: %w", path, err)
	}
	if b.ExpectedFailures == nil {
		b.ExpectedFailures = map[string][]string{}
	}
	return b, nil
}

// Allows reports whether every failing check ID of the scenario is
// covered by the allowlist. An empty failure set is trivially allowed.
func (b *Baseline) Allows(scenario string, failingIDs []string) bool {
	if len(failingIDs) == 0 {
		return true
	}
	allowed := map[string]bool{}
	for _, id := range b.ExpectedFailures[scenario] {
		allowed[id] = true
	}
	for _, id := range b.ExpectedFailures["*"] {
		allowed[id] = true
	}
	if allowed["*"] {
		return true
	}
	for _, id := range failingIDs {
		if !allowed[id] {
			return false
		}
	}
	return true
}

// Set records the allowed failures for one scenario, replacing any
// previous entry. An empty ID list removes the entry.
func (b *Baseline) Set(scenario string, failingIDs []string) {
	if b.ExpectedFailures == nil {
		b.ExpectedFailures = map[string][]string{}
	}
	if len(failingIDs) == 0 {
		delete(b.ExpectedFailures, scenario)
		return
	}
	b.ExpectedFailures[scenario] = failingIDs
}

// Save writes the baseline as YAML, loadable by Load.
func (b *Baseline) Save(path string) error {
	doc := map[string]map[string][]string{"expected_failures": b.ExpectedFailures}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write baseline %s: %w", path, err)
	}
	return nil
}

// Scenarios returns the scenario names with baseline entries, for
// reporting.
func (b *Baseline) Scenarios() []string {
	var out []string
	for name := range b.ExpectedFailures {
		out = append(out, name)
	}
	return out
}

// String renders a short summary for logs.
func (b *Baseline) String() string {
	if len(b.ExpectedFailures) == 0 {
		return "baseline: empty"
	}
	parts := make([]string, 0, len(b.ExpectedFailures))
	for name, ids := range b.ExpectedFailures {
		parts = append(parts, fmt.Sprintf("%s(%d)", name, len(ids)))
	}
	return "baseline: " + strings.Join(parts, ", ")
}
