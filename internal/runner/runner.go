// Package runner spawns and supervises simulated users for the
// duration of a load run.
package runner

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opensaves/savesbench/internal/config"
	"github.com/opensaves/savesbench/internal/driver"
	"github.com/opensaves/savesbench/internal/stats"
)

// UserFactory builds one simulated user. The seed makes each user's
// random stream reproducible.
type UserFactory func(seed int64) driver.User

// Runner ramps users up at the configured spawn rate, steps them with
// think time until the run duration elapses, then stops them and
// flushes results.
type Runner struct {
	cfg       config.RunConfig
	newUser   UserFactory
	collector *stats.Collector
	logger    *zap.Logger

	limiter  *rate.Limiter
	flushDir string

	mu     sync.Mutex
	active int
}

// Option configures a Runner.
type Option func(*Runner)

// WithCSVFlush enables periodic and final CSV output into dir, using
// the run's csv prefix.
func WithCSVFlush(dir string) Option {
	return func(r *Runner) { r.flushDir = dir }
}

// New creates a Runner. A TargetRPS of zero leaves request pacing to
// think time alone.
func New(cfg config.RunConfig, newUser UserFactory, collector *stats.Collector, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		newUser:   newUser,
		collector: collector,
		logger:    logger,
	}
	if cfg.TargetRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.TargetRPS), cfg.TargetRPS)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one load run and blocks until every user has stopped.
// Cancelling ctx ends the run early but still drains users and flushes
// output.
func (r *Runner) Run(ctx context.Context) error {
	raiseFileLimit(r.logger)

	if r.flushDir != "" {
		if err := os.MkdirAll(r.flushDir, 0o750); err != nil {
			return err
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Duration)
		defer cancel()
	}

	r.logger.Info("starting load run",
		zap.Int("users", r.cfg.Users),
		zap.Float64("spawn_rate", r.cfg.SpawnRate),
		zap.Duration("duration", r.cfg.Duration))

	done := make(chan struct{})
	go r.snapshotLoop(done)

	var wg sync.WaitGroup
	spawnGap := time.Duration(float64(time.Second) / r.cfg.SpawnRate)

spawn:
	for i := 0; i < r.cfg.Users; i++ {
		wg.Add(1)
		go r.runUser(runCtx, &wg, int64(i))

		if i == r.cfg.Users-1 {
			break
		}
		select {
		case <-runCtx.Done():
			break spawn
		case <-time.After(spawnGap):
		}
	}

	wg.Wait()
	close(done)

	r.collector.Stop()
	if r.flushDir != "" {
		if err := r.collector.WriteAll(r.flushDir, r.cfg.CSVPrefix); err != nil {
			return err
		}
	}
	r.logger.Info("load run finished")
	return nil
}

func (r *Runner) runUser(ctx context.Context, wg *sync.WaitGroup, seed int64) {
	defer wg.Done()

	u := r.newUser(seed)
	rng := rand.New(rand.NewSource(seed ^ 0x5eedfeed)) // #nosec G404 - think-time jitter

	if err := u.Start(ctx); err != nil {
		// The user stays in rotation; drivers treat failed setup as
		// idle and may retry on later steps.
		r.logger.Debug("user start failed", zap.Int64("seed", seed), zap.Error(err))
	}
	r.addActive(1)
	defer func() {
		// Teardown gets its own deadline so cancellation does not
		// leak stores.
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		u.Stop(stopCtx)
		r.addActive(-1)
	}()

	for {
		if !r.sleepThink(ctx, rng) {
			return
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}
		u.Step(ctx)
	}
}

// sleepThink waits a uniform random think time; false means the run is
// over.
func (r *Runner) sleepThink(ctx context.Context, rng *rand.Rand) bool {
	think := r.cfg.WaitMin
	if span := r.cfg.WaitMax - r.cfg.WaitMin; span > 0 {
		think += time.Duration(rng.Int63n(int64(span)))
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(think):
		return true
	}
}

func historyPath(dir, prefix string) string {
	return filepath.Join(dir, prefix+"_stats_history.csv")
}

func (r *Runner) addActive(delta int) {
	r.mu.Lock()
	r.active += delta
	n := r.active
	r.mu.Unlock()
	r.collector.SetActiveUsers(n)
}

// snapshotLoop appends a history row every second and periodically
// flushes the history CSV so a crashed run still leaves usable output.
// It runs until every user has drained.
func (r *Runner) snapshotLoop(done chan struct{}) {
	const interval = time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var flush <-chan time.Time
	if r.flushDir != "" && r.cfg.FlushInterval > 0 {
		ft := time.NewTicker(r.cfg.FlushInterval)
		defer ft.Stop()
		flush = ft.C
	}

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			r.collector.TakeSnapshot(now, interval)
		case <-flush:
			if err := r.collector.WriteHistoryCSV(historyPath(r.flushDir, r.cfg.CSVPrefix)); err != nil {
				r.logger.Warn("history flush failed", zap.Error(err))
			}
		}
	}
}
