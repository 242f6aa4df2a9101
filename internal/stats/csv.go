package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Column layouts follow the Locust CSV artifacts so existing tooling
// (including this repo's report command) reads them unchanged.
var (
	statsHeader = []string{
		"Name", "Request Count", "Failure Count",
		"Average Response Time", "Median Response Time",
		"95%", "99%", "Max Response Time", "Requests/s",
	}
	historyHeader = []string{
		"Timestamp", "User Count", "Total RPS",
		"Average Response Time", "Median Response Time", "Total Failures",
	}
	distributionHeader = []string{"Response Time"}
)

// WriteAll writes the three CSV artifacts under dir with the given
// prefix: <prefix>_stats.csv, <prefix>_stats_history.csv, and
// <prefix>_distribution.csv.
func (c *Collector) WriteAll(dir, prefix string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := c.WriteStatsCSV(filepath.Join(dir, prefix+"_stats.csv")); err != nil {
		return err
	}
	if err := c.WriteHistoryCSV(filepath.Join(dir, prefix+"_stats_history.csv")); err != nil {
		return err
	}
	return c.WriteDistributionCSV(filepath.Join(dir, prefix+"_distribution.csv"))
}

// WriteStatsCSV writes the aggregate stats file.
func (c *Collector) WriteStatsCSV(path string) error {
	return writeCSV(path, statsHeader, func(w *csv.Writer) error {
		for _, row := range c.Rows() {
			record := []string{
				row.Name,
				strconv.FormatInt(row.RequestCount, 10),
				strconv.FormatInt(row.FailureCount, 10),
				formatMS(row.AvgMS),
				formatMS(row.MedianMS),
				formatMS(row.P95MS),
				formatMS(row.P99MS),
				formatMS(row.MaxMS),
				strconv.FormatFloat(row.RPS, 'f', 2, 64),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteHistoryCSV rewrites the per-second history file. The runner
// calls this on every flush interval, so the file is always complete.
func (c *Collector) WriteHistoryCSV(path string) error {
	return writeCSV(path, historyHeader, func(w *csv.Writer) error {
		for _, row := range c.History() {
			record := []string{
				strconv.FormatInt(row.Timestamp, 10),
				strconv.Itoa(row.UserCount),
				strconv.FormatFloat(row.TotalRPS, 'f', 2, 64),
				formatMS(row.AvgResponseMS),
				formatMS(row.MedResponseMS),
				strconv.FormatInt(row.TotalFailures, 10),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteDistributionCSV writes one response time per recorded request.
func (c *Collector) WriteDistributionCSV(path string) error {
	return writeCSV(path, distributionHeader, func(w *csv.Writer) error {
		for _, ms := range c.Latencies() {
			if err := w.Write([]string{formatMS(ms)}); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, header []string, body func(*csv.Writer) error) error {
	f, err := os.Create(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := body(w); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func formatMS(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
