package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/pkg/cron"
)

func newServeCommand(a *app) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled recategorization and expose /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				return serve(ctx, deps, runNow)
			})
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "recategorize once at startup")
	return cmd
}

func serve(ctx context.Context, deps *Dependencies, runNow bool) error {
	cfg := deps.Config
	logger := deps.Logger

	if cfg.Scheduler.Enabled {
		scheduler := cron.NewScheduler(deps.Categories, cfg.Scheduler.Schedule, cfg.Scheduler.Mode, logger)
		if runNow {
			if _, err := scheduler.RunNow(); err != nil {
				logger.Error("startup recategorization failed", slog.Any("error", err))
			}
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	var srv *http.Server
	errCh := make(chan error, 1)
	if cfg.Observability.MetricsEnabled && deps.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", deps.Metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := deps.DB.Pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		srv = &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop metrics server: %w", err)
		}
	}
	return nil
}
