// Package main provides the CLI entry point for savesbench, a load
// tester and results-reporting toolkit for Open Saves style storage
// APIs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "savesbench",
		Short: "Load tester and results reporter for Open Saves style storage APIs",
		Long: `Savesbench simulates concurrent users performing CRUD operations on
stores, records, blobs and metadata over HTTP, writes Locust-compatible
CSV statistics, and post-processes those CSVs into a JSON summary and
charts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging (human-readable output)")

	root.AddCommand(newRunCmd(&debug))
	root.AddCommand(newReportCmd(&debug))
	root.AddCommand(newWatchCmd(&debug))
	root.AddCommand(newFakeserverCmd(&debug))

	return root
}

// buildLogger creates the process logger. Debug mode switches to the
// development encoder; level only applies to production output.
func buildLogger(debug bool, level string) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	if level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(l)
	}
	return cfg.Build()
}
