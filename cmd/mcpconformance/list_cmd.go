package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mcpconformance-go/internal/scenarios"
)

func newListCommand() *cobra.Command {
	var (
		suite      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios and suites",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := scenarios.NewRegistry()
			if err != nil {
				return exitWith(ExitCodeGeneralError, "failed to build scenario registry: %w", err)
			}

			defs := registry.Suite(suite)
			if len(defs) == 0 {
				return exitWith(ExitCodeConfigError, "suite %q matches no scenarios (suites: %s)",
					suite, strings.Join(registry.Suites(), ", "))
			}

			if jsonOutput {
				type entry struct {
					Name        string   `json:"name"`
					Description string   `json:"description"`
					Suites      []string `json:"suites"`
				}
				out := make([]entry, 0, len(defs))
				for _, d := range defs {
					out = append(out, entry{Name: d.Name, Description: d.Description, Suites: d.Suites})
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for _, d := range defs {
				fmt.Printf("%-30s [%s]\n", d.Name, strings.Join(d.Suites, ", "))
				fmt.Printf("    %s\n", d.Description)
			}
			fmt.Printf("\n%d scenario(s); suites: %s\n", len(defs), strings.Join(registry.Suites(), ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&suite, "suite", "all", "Filter by suite")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")

	return cmd
}
