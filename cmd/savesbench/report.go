package main

import (
	"github.com/spf13/cobra"

	"github.com/opensaves/savesbench/internal/config"
	"github.com/opensaves/savesbench/internal/report"
)

func newReportCmd(debug *bool) *cobra.Command {
	var (
		inputFile        string
		distributionFile string
		historyFile      string
		outputDir        string
		bundle           bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Process load test CSV files into a summary and charts",
		Long: `Parse the Locust-compatible stats CSV (plus optional history and
distribution CSVs) and write summary.json and PNG charts to the output
directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := buildLogger(*debug, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if historyFile == "" && distributionFile == "" {
				historyFile, distributionFile = report.SiblingFiles(inputFile)
			}

			opts := report.Options{
				StatsPath:        inputFile,
				HistoryPath:      historyFile,
				DistributionPath: distributionFile,
				OutputDir:        outputDir,
			}
			if err := report.Process(opts, logger); err != nil {
				return err
			}

			if bundle {
				cfg, err := config.Load("")
				if err != nil {
					return err
				}
				return bundleArtifacts(outputDir, cfg, logger)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&inputFile, "input-file", "",
		"Path to the <prefix>_stats.csv file")
	flags.StringVar(&distributionFile, "distribution-file", "",
		"Path to the <prefix>_distribution.csv file (derived from --input-file when omitted)")
	flags.StringVar(&historyFile, "history-file", "",
		"Path to the <prefix>_stats_history.csv file (derived from --input-file when omitted)")
	flags.StringVar(&outputDir, "output-dir", "./results",
		"Directory for summary.json and charts")
	flags.BoolVar(&bundle, "bundle", false,
		"Bundle the output directory into a tar.gz afterwards")
	_ = cmd.MarkFlagRequired("input-file")

	return cmd
}
