package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/filter"
	"github.com/oicur0t/tracex/internal/follow"
	"github.com/oicur0t/tracex/pkg/models"
)

const metricsShutdownTimeout = 5 * time.Second

func newFollowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "follow FILE",
		Short: "Print records as they are written to a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFollow(cmd, args[0])
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	cmd.Flags().StringSlice("level", nil, "Only show these levels")
	cmd.Flags().Duration("poll-interval", 250*time.Millisecond, "Polling interval, 0 to use inotify")
	cmd.Flags().String("metrics-address", "", "Serve prometheus metrics on this address")
	return cmd
}

func (a *app) runFollow(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	flt, err := filter.New(a.cfg.Filters)
	if err != nil {
		return err
	}

	if addr := a.cfg.Follow.MetricsAddress; addr != "" {
		stop := a.serveMetrics(addr)
		defer stop()
	}

	p := newPrinter(cmd.OutOrStdout(), a.cfg.Output, filepath.Base(path))
	defer p.Close()

	f := follow.New(path, a.cfg.Follow.PollInterval, a.passwordPrompter(), flt, a.logger)
	err = f.Run(ctx, func(recs []*models.Record) error {
		return p.Print(recs)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serveMetrics starts the metrics endpoint and returns a function that
// shuts it down.
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("Metrics server starting", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("Metrics server shutdown error", zap.Error(err))
			httpServer.Close()
		}
	}
}
