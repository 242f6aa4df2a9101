package report

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reprocesses results whenever a stats CSV in the watched
// directory stops changing.
type Watcher struct {
	dir       string
	outputDir string
	debounce  time.Duration
	logger    *zap.Logger

	// process is swapped out in tests.
	process func(Options, *zap.Logger) error
}

// NewWatcher watches dir for `*_stats.csv` writes and runs the
// processor once writes quiesce for the debounce interval.
func NewWatcher(dir, outputDir string, debounce time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:       dir,
		outputDir: outputDir,
		debounce:  debounce,
		logger:    logger,
		process:   Process,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for stats files",
		zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	// One timer per stats file so concurrent runs with different
	// prefixes each settle independently.
	pending := make(map[string]*time.Timer)
	settled := make(chan string)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(ev.Name, "_stats.csv") {
				continue
			}
			path := ev.Name
			if t, exists := pending[path]; exists {
				t.Reset(w.debounce)
			} else {
				pending[path] = time.AfterFunc(w.debounce, func() {
					select {
					case settled <- path:
					case <-ctx.Done():
					}
				})
			}

		case path := <-settled:
			delete(pending, path)
			w.processFile(path)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) processFile(statsPath string) {
	historyPath, distributionPath := SiblingFiles(statsPath)

	outputDir := w.outputDir
	if outputDir == "" {
		outputDir = filepath.Join(w.dir, "results")
	}

	w.logger.Info("processing stats file", zap.String("path", statsPath))
	err := w.process(Options{
		StatsPath:        statsPath,
		DistributionPath: distributionPath,
		HistoryPath:      historyPath,
		OutputDir:        outputDir,
	}, w.logger)
	if err != nil {
		w.logger.Error("processing failed", zap.String("path", statsPath), zap.Error(err))
	}
}
