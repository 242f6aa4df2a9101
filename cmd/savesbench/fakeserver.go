package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opensaves/savesbench/internal/fakeserver"
)

func newFakeserverCmd(debug *bool) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "fakeserver",
		Short: "Serve an in-memory Open Saves compatible API",
		Long: `Start an in-memory implementation of the Open Saves HTTP API for
local load test development. All data is lost on exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := buildLogger(*debug, "")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv := &http.Server{
				Addr:              addr,
				Handler:           fakeserver.New(logger).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("fakeserver listening", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down fakeserver")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080",
		"Address for the fake server to listen on")

	return cmd
}
