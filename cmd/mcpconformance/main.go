package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpconformance-go/internal/logs"
)

var (
	logLevel  string
	logToFile bool
	logDir    string
	verbose   bool

	version = "v0.1.0" // Injected by -ldflags during build
)

// exitError carries a specific exit code through RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func exitWith(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "mcpconformance",
		Short:         "Conformance test harness for MCP OAuth 2.1 clients and servers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "Enable logging to file in standard OS location")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Custom log directory path (overrides standard OS location)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug level)")

	rootCmd.AddCommand(newClientCommand())
	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(newListCommand())

	if err := rootCmd.Execute(); err != nil {
		code := ExitCodeGeneralError
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}

// setupLogger builds the command logger from the persistent flags.
func setupLogger() (*zap.Logger, error) {
	logger, err := logs.SetupCommandLogger(verbose, logLevel, logToFile, logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, nil
}
