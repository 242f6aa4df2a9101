package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/artifacts"
	"github.com/opensaves/savesbench/internal/client"
	"github.com/opensaves/savesbench/internal/config"
	"github.com/opensaves/savesbench/internal/driver"
	"github.com/opensaves/savesbench/internal/history"
	"github.com/opensaves/savesbench/internal/runner"
	"github.com/opensaves/savesbench/internal/stats"
	"github.com/opensaves/savesbench/internal/status"
	"github.com/opensaves/savesbench/internal/verify"
)

func newRunCmd(debug *bool) *cobra.Command {
	var (
		configPath string
		profile    string
		users      int
		duration   time.Duration
		csvPrefix  string
		outputDir  string
		requestLog string
		bundle     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against the target API",
		Long: `Spawn simulated users against the configured target, collect
per-request statistics, and write Locust-compatible CSV files on exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("profile") {
				cfg.Run.Profile = profile
			}
			if cmd.Flags().Changed("users") {
				cfg.Run.Users = users
			}
			if cmd.Flags().Changed("duration") {
				cfg.Run.Duration = duration
			}
			if cmd.Flags().Changed("csv-prefix") {
				cfg.Run.CSVPrefix = csvPrefix
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("output-dir") && cfg.Artifacts.Dir != "" {
				outputDir = cfg.Artifacts.Dir
			}

			logger, err := buildLogger(*debug, cfg.Log.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runLoadTest(cmd.Context(), logger, cfg, runOptions{
				outputDir:  outputDir,
				requestLog: requestLog,
				bundle:     bundle,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to YAML config file (defaults + SAVESBENCH_* env otherwise)")
	flags.StringVar(&profile, "profile", "simple",
		"Load profile: simple or structured")
	flags.IntVar(&users, "users", 10,
		"Number of simulated users")
	flags.DurationVar(&duration, "duration", time.Minute,
		"Run duration")
	flags.StringVar(&csvPrefix, "csv-prefix", "opensaves",
		"Prefix for the CSV output files")
	flags.StringVar(&outputDir, "output-dir", "./results",
		"Directory for CSV output")
	flags.StringVar(&requestLog, "request-log", "",
		"Optional snappy-framed JSON request log file")
	flags.BoolVar(&bundle, "bundle", false,
		"Bundle the output directory into a tar.gz after the run")

	return cmd
}

type runOptions struct {
	outputDir  string
	requestLog string
	bundle     bool
}

func runLoadTest(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts runOptions) error {
	metrics := stats.NewMetrics()
	collectorOpts := []stats.Option{stats.WithMetrics(metrics)}

	if opts.requestLog != "" {
		rl, err := stats.OpenRequestLog(opts.requestLog)
		if err != nil {
			return err
		}
		defer func() {
			if err := rl.Close(); err != nil {
				logger.Warn("closing request log failed", zap.Error(err))
			}
		}()
		collectorOpts = append(collectorOpts, stats.WithRequestLog(rl))
	}
	collector := stats.NewCollector(logger, collectorOpts...)

	api, err := buildClient(cfg, collector, logger)
	if err != nil {
		return err
	}

	var histStore *history.Store
	if cfg.History.DSN != "" {
		openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		histStore, err = history.Open(openCtx, cfg.History.DSN)
		cancel()
		if err != nil {
			logger.Warn("run history unavailable", zap.Error(err))
			histStore = nil
		} else {
			defer func() { _ = histStore.Close() }()
		}
	}

	var statusOpts []status.Option
	if histStore != nil {
		statusOpts = append(statusOpts, status.WithHistory(histStore))
	}
	statusSrv := status.New(cfg.Status.Addr, collector, metrics, logger, statusOpts...)
	statusSrv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}()

	factory := func(seed int64) driver.User {
		if cfg.Run.Profile == "structured" {
			return driver.NewStructured(cfg.Structured, api, logger, seed)
		}
		return driver.NewSimple(cfg.Simple, api, collector, logger, seed)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	r := runner.New(cfg.Run, factory, collector, logger,
		runner.WithCSVFlush(opts.outputDir))
	if err := r.Run(runCtx); err != nil {
		return err
	}
	finished := time.Now()

	if histStore != nil {
		if err := saveRunHistory(histStore, cfg, collector, started, finished, logger); err != nil {
			logger.Warn("saving run history failed", zap.Error(err))
		}
	}

	if opts.bundle {
		return bundleArtifacts(opts.outputDir, cfg, logger)
	}
	return nil
}

func buildClient(cfg *config.Config, collector *stats.Collector, logger *zap.Logger) (*client.Client, error) {
	clientOpts := []client.Option{
		client.WithTimeout(cfg.Target.Timeout),
		client.WithObserver(collector.Request),
	}

	auth := cfg.Target.Auth
	switch {
	case auth.BearerToken != "":
		clientOpts = append(clientOpts, client.WithBearerToken(auth.BearerToken))
	case auth.JWTSecret != "":
		clientOpts = append(clientOpts, client.WithJWTSecret(auth.JWTSecret))
	case auth.OAuth.TokenURL != "":
		clientOpts = append(clientOpts,
			client.WithOAuth(auth.OAuth.TokenURL, auth.OAuth.ClientID, auth.OAuth.ClientSecret))
	}

	if rate := cfg.Verify.SchemaSampleRate; rate > 0 {
		validator, err := verify.NewSchemaValidator(rate, time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, client.WithResponseSampler(func(name string, body []byte) {
			if f := validator.Check(name, body); f != nil {
				collector.Verification(f.Check, f.Message)
			}
		}))
	}

	return client.New(cfg.Target.BaseURL, logger, clientOpts...), nil
}

func saveRunHistory(store *history.Store, cfg *config.Config, collector *stats.Collector, started, finished time.Time, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	rows := collector.Rows()
	agg := rows[len(rows)-1]

	run := &history.Run{
		Profile:       cfg.Run.Profile,
		StartedAt:     started,
		FinishedAt:    finished,
		Users:         cfg.Run.Users,
		TotalRequests: agg.RequestCount,
		TotalFailures: agg.FailureCount,
		P95ResponseMS: agg.P95MS,
		TotalRPS:      agg.RPS,
	}
	if agg.RequestCount > 0 {
		run.FailureRate = float64(agg.FailureCount) / float64(agg.RequestCount) * 100
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return err
	}
	logger.Info("run recorded", zap.String("run_id", run.ID))
	return nil
}

func bundleArtifacts(dir string, cfg *config.Config, logger *zap.Logger) error {
	archive, err := artifacts.Bundle(dir)
	if err != nil {
		return err
	}
	logger.Info("bundled artifacts", zap.String("archive", archive))

	if cfg.Artifacts.S3Bucket == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	uploader, err := artifacts.NewUploader(ctx, cfg.Artifacts.S3Bucket, cfg.Artifacts.S3Prefix, logger)
	if err != nil {
		return err
	}
	key, err := uploader.Upload(ctx, archive)
	if err != nil {
		return err
	}
	logger.Info("uploaded artifacts",
		zap.String("bucket", cfg.Artifacts.S3Bucket), zap.String("key", key))
	return nil
}

