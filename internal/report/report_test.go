package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const statsFixture = `Name,Request Count,Failure Count,Average Response Time,Median Response Time,95%,99%,Max Response Time,Requests/s
GET /api/stores/{store_id},40,2,12.50,10.00,30.00,45.00,80.00,4.00
POST /api/stores/{store_id}/records,60,3,25.00,20.00,60.00,90.00,150.00,6.00
Aggregated,100,5,20.00,15.00,50.00,75.00,150.00,10.00
`

const historyFixture = `Timestamp,User Count,Total RPS,Average Response Time,Median Response Time,Total Failures
2026-08-30T12:00:00Z,5,8.00,20.00,15.00,1
2026-08-30T12:00:01Z,10,10.00,22.00,16.00,3
`

const distributionFixture = `Response Time
10.5
22.0
31.2
18.7
`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadStats(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "run_stats.csv", statsFixture)

	rows, err := ReadStats(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "GET /api/stores/{store_id}", rows[0].Name)
	assert.Equal(t, int64(40), rows[0].RequestCount)
	assert.Equal(t, 12.5, rows[0].AvgMS)
	assert.Equal(t, "Aggregated", rows[2].Name)
}

func TestReadStatsErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadStats(filepath.Join(dir, "nope.csv"))
		assert.Error(t, err)
	})
	t.Run("missing column", func(t *testing.T) {
		path := writeFixture(t, dir, "bad_header.csv", "Name,Request Count\nx,1\n")
		_, err := ReadStats(path)
		assert.ErrorContains(t, err, "missing column")
	})
	t.Run("bad number", func(t *testing.T) {
		path := writeFixture(t, dir, "bad_value.csv",
			"Name,Request Count,Failure Count,Average Response Time,Median Response Time,95%,99%,Max Response Time,Requests/s\n"+
				"x,oops,0,1,1,1,1,1,1\n")
		_, err := ReadStats(path)
		assert.ErrorContains(t, err, "line 2")
	})
}

func TestBuildSummary(t *testing.T) {
	dir := t.TempDir()
	rows, err := ReadStats(writeFixture(t, dir, "run_stats.csv", statsFixture))
	require.NoError(t, err)
	history, err := ReadHistory(writeFixture(t, dir, "run_stats_history.csv", historyFixture))
	require.NoError(t, err)

	s := BuildSummary(rows, history, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, int64(100), s.TotalRequests)
	assert.Equal(t, int64(5), s.TotalFailures)
	assert.Equal(t, 5.0, s.FailureRate)
	assert.Equal(t, 20.0, s.AvgResponseTime)
	assert.Equal(t, 150.0, s.MaxResponseTime)
	assert.Equal(t, 10.0, s.TotalRPS)

	require.Len(t, s.Endpoints, 2, "endpoints exclude the Aggregated row")
	assert.Equal(t, 5.0, s.Endpoints[0].FailureRate)
	assert.Equal(t, 5.0, s.Endpoints[1].FailureRate)

	require.NotNil(t, s.History)
	assert.Equal(t, []int{5, 10}, s.History.Users)
	assert.Equal(t, []int64{1, 3}, s.History.Failures)
}

func TestBuildSummaryWithoutAggregatedRow(t *testing.T) {
	rows := []StatsRow{
		{Name: "a", RequestCount: 10, FailureCount: 1, AvgMS: 10, MedianMS: 8, P95MS: 20, P99MS: 30, MaxMS: 40, RPS: 1},
		{Name: "b", RequestCount: 30, FailureCount: 0, AvgMS: 30, MedianMS: 24, P95MS: 60, P99MS: 90, MaxMS: 120, RPS: 3},
	}
	s := BuildSummary(rows, nil, time.Now())

	assert.Equal(t, int64(40), s.TotalRequests)
	assert.Equal(t, int64(1), s.TotalFailures)
	assert.Equal(t, 2.5, s.FailureRate)
	assert.Equal(t, 20.0, s.AvgResponseTime, "mean over endpoint rows")
	assert.Equal(t, 120.0, s.MaxResponseTime)
	assert.Equal(t, 4.0, s.TotalRPS)
	assert.Nil(t, s.History)
}

func TestProcessWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	statsPath := writeFixture(t, dir, "run_stats.csv", statsFixture)
	historyPath := writeFixture(t, dir, "run_stats_history.csv", historyFixture)
	distPath := writeFixture(t, dir, "run_distribution.csv", distributionFixture)
	outDir := filepath.Join(dir, "results")

	err := Process(Options{
		StatsPath:        statsPath,
		DistributionPath: distPath,
		HistoryPath:      historyPath,
		OutputDir:        outDir,
	}, zap.NewNop())
	require.NoError(t, err)

	for _, name := range []string{
		"summary.json", "endpoint_metrics.png", "time_series.png", "response_time_distribution.png",
	} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}
}

func TestProcessDeterministic(t *testing.T) {
	dir := t.TempDir()
	statsPath := writeFixture(t, dir, "run_stats.csv", statsFixture)

	read := func(outDir string) string {
		require.NoError(t, Process(Options{StatsPath: statsPath, OutputDir: outDir}, zap.NewNop()))
		data, err := os.ReadFile(filepath.Join(outDir, "summary.json"))
		require.NoError(t, err)
		// Blank out the only run-dependent field.
		re := regexp.MustCompile(`"timestamp": "[^"]*"`)
		return re.ReplaceAllString(string(data), `"timestamp": ""`)
	}

	first := read(filepath.Join(dir, "out1"))
	second := read(filepath.Join(dir, "out2"))
	assert.Equal(t, first, second, "identical inputs must produce identical summaries")
}

func TestProcessUnparsableStats(t *testing.T) {
	dir := t.TempDir()
	statsPath := writeFixture(t, dir, "run_stats.csv", "not,a\nvalid locust file")
	outDir := filepath.Join(dir, "results")

	err := Process(Options{StatsPath: statsPath, OutputDir: outDir}, zap.NewNop())
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(outDir, "summary.json"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no summary may be written on parse failure")
}

func TestProcessSkipsBadOptionalFiles(t *testing.T) {
	dir := t.TempDir()
	statsPath := writeFixture(t, dir, "run_stats.csv", statsFixture)
	badHistory := writeFixture(t, dir, "run_stats_history.csv", "garbage")
	outDir := filepath.Join(dir, "results")

	err := Process(Options{
		StatsPath:   statsPath,
		HistoryPath: badHistory,
		OutputDir:   outDir,
	}, zap.NewNop())
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(outDir, "summary.json"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(outDir, "time_series.png"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no time series without parsable history")
}

func TestSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	statsPath := writeFixture(t, dir, "run_stats.csv", statsFixture)
	writeFixture(t, dir, "run_stats_history.csv", historyFixture)

	history, distribution := SiblingFiles(statsPath)
	assert.Equal(t, filepath.Join(dir, "run_stats_history.csv"), history)
	assert.Empty(t, distribution, "absent sibling resolves to empty")

	history, distribution = SiblingFiles(filepath.Join(dir, "not-a-stats-file.txt"))
	assert.Empty(t, history)
	assert.Empty(t, distribution)
}

func TestWatcherProcessesSettledFile(t *testing.T) {
	dir := t.TempDir()
	processed := make(chan Options, 1)

	w := NewWatcher(dir, filepath.Join(dir, "out"), 50*time.Millisecond, zap.NewNop())
	w.process = func(opts Options, _ *zap.Logger) error {
		processed <- opts
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	statsPath := writeFixture(t, dir, "run_stats.csv", statsFixture)
	writeFixture(t, dir, "run_stats_history.csv", historyFixture)

	select {
	case opts := <-processed:
		assert.Equal(t, statsPath, opts.StatsPath)
		assert.Equal(t, filepath.Join(dir, "run_stats_history.csv"), opts.HistoryPath)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never processed the stats file")
	}

	cancel()
	require.NoError(t, <-done)
}
