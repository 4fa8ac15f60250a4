package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peershare/internal/metrics"
)

var flagMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "share the folder without the interactive console",
	Long:  `runs only the peer server until interrupted, optionally exposing Prometheus metrics`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		srv, err := a.newServer()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.MetricsAddr != "" {
			go serveMetrics(ctx, cfg.MetricsAddr, a.logger)
		}

		err = srv.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "address to serve /metrics on")
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() { _ = metricsServer.Close() })
	defer stop()

	logger.Info("Metrics server listening", "addr", addr)
	if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server error", "error", err)
	}
}
