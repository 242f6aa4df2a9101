package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options names the input and output files for one processing run.
// DistributionPath and HistoryPath are optional.
type Options struct {
	StatsPath        string
	DistributionPath string
	HistoryPath      string
	OutputDir        string
}

// Process reads the stats CSV (fatal if unparsable), the optional
// distribution and history CSVs (skipped with a log line if not), and
// writes summary.json plus charts into OutputDir. Nothing is written
// when the stats file fails to parse.
func Process(opts Options, logger *zap.Logger) error {
	rows, err := ReadStats(opts.StatsPath)
	if err != nil {
		return fmt.Errorf("process results: %w", err)
	}

	var history []HistoryPoint
	if opts.HistoryPath != "" {
		history, err = ReadHistory(opts.HistoryPath)
		if err != nil {
			logger.Warn("skipping history file", zap.String("path", opts.HistoryPath), zap.Error(err))
			history = nil
		}
	}

	var distribution []float64
	if opts.DistributionPath != "" {
		distribution, err = ReadDistribution(opts.DistributionPath)
		if err != nil {
			logger.Warn("skipping distribution file", zap.String("path", opts.DistributionPath), zap.Error(err))
			distribution = nil
		}
	}

	if err := os.MkdirAll(opts.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	summary := BuildSummary(rows, history, time.Now())
	summaryPath := filepath.Join(opts.OutputDir, "summary.json")
	if err := summary.WriteSummary(summaryPath); err != nil {
		return err
	}
	logger.Info("wrote summary",
		zap.String("path", summaryPath),
		zap.Int64("total_requests", summary.TotalRequests),
		zap.Float64("failure_rate", summary.FailureRate))

	if err := RenderEndpointMetrics(rows, filepath.Join(opts.OutputDir, "endpoint_metrics.png")); err != nil {
		return err
	}
	if len(history) > 0 {
		if err := RenderTimeSeries(history, filepath.Join(opts.OutputDir, "time_series.png")); err != nil {
			return err
		}
	}
	if len(distribution) > 0 {
		if err := RenderDistribution(distribution, filepath.Join(opts.OutputDir, "response_time_distribution.png")); err != nil {
			return err
		}
	}
	return nil
}

// SiblingFiles derives the history and distribution paths that belong
// to a stats CSV (X_stats.csv -> X_stats_history.csv,
// X_distribution.csv), returning empty strings for files that do not
// exist.
func SiblingFiles(statsPath string) (historyPath, distributionPath string) {
	base, ok := strings.CutSuffix(statsPath, "_stats.csv")
	if !ok {
		return "", ""
	}

	if p := base + "_stats_history.csv"; fileExists(p) {
		historyPath = p
	}
	if p := base + "_distribution.csv"; fileExists(p) {
		distributionPath = p
	}
	return historyPath, distributionPath
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
