package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcpconformance-go/internal/adapter"
	"mcpconformance-go/internal/checks"
	"mcpconformance-go/internal/refclient"
)

func newServerCommand() *cobra.Command {
	var (
		timeout     time.Duration
		jsonOutput  bool
		contextVars map[string]string
	)

	cmd := &cobra.Command{
		Use:   "server <mcp-endpoint-url>",
		Short: "Grade a live MCP server's authorization behavior",
		Long: `Runs the bundled reference client against the given endpoint and
records a check per flow step: challenge, metadata discovery, resource
identifier validation, token issuance and the MCP session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogger()
			if err != nil {
				return exitWith(ExitCodeConfigError, "%v", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			ledger := checks.NewLedger()
			client := refclient.New(logger, contextVars)
			client.SetLedger(ledger)

			runErr := client.Run(runCtx, args[0])
			report := ledger.Snapshot()

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return exitWith(ExitCodeGeneralError, "failed to encode checks: %w", err)
				}
			} else {
				for _, c := range report {
					fmt.Printf("  %-8s %-36s %s\n", c.Status, c.ID, c.Description)
				}
			}

			failures := checks.CountByStatus(report)[checks.StatusFailure]
			if runErr != nil || failures > 0 {
				return exitWith(ExitCodeConformanceFailure,
					"server failed %d check(s): %v", failures, runErr)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", adapter.DefaultScenarioTimeout, "Overall flow timeout")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit checks as JSON on stdout")
	cmd.Flags().StringToStringVar(&contextVars, "context", nil,
		"Out-of-band material for the flow (client_id, client_secret, ...)")

	return cmd
}
