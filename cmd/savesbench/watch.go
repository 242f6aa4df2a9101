package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensaves/savesbench/internal/report"
)

func newWatchCmd(debug *bool) *cobra.Command {
	var (
		dir       string
		outputDir string
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and process stats CSVs as they appear",
		Long: `Watch a directory for *_stats.csv files and run the report pipeline
on each one once writes have settled. Useful alongside a running load
test that flushes CSVs periodically.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := buildLogger(*debug, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := report.NewWatcher(dir, outputDir, debounce, logger)
			return w.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", ".",
		"Directory to watch for stats CSV files")
	flags.StringVar(&outputDir, "output-dir", "",
		"Directory for generated reports (defaults to <dir>/results)")
	flags.DurationVar(&debounce, "debounce", 2*time.Second,
		"Quiet period before a changed file is processed")

	return cmd
}
