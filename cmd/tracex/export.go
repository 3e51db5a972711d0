package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/config"
	"github.com/oicur0t/tracex/internal/export"
	"github.com/oicur0t/tracex/internal/loader"
	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/pkg/mtls"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Store every record of a file in SQLite or MongoDB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd, args[0])
		},
	}
	cmd.Flags().String("sink", "sqlite", "Sink to export to (sqlite or mongodb)")
	cmd.Flags().String("sqlite-path", "tracex.db", "SQLite database file")
	cmd.Flags().String("mongodb-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	cmd.Flags().Bool("progress", false, "Log decode progress every second")
	return cmd
}

func newSink(ctx context.Context, cfg config.ExportConfig, logger *zap.Logger) (export.Sink, error) {
	if cfg.Sink == "sqlite" {
		return export.NewSQLiteSink(cfg.SQLite.Path, logger)
	}

	var tlsConfig *tls.Config
	if cfg.MongoDB.TLS.Enabled {
		var err error
		tlsConfig, err = mtls.LoadClientTLSConfig(
			cfg.MongoDB.TLS.CACert,
			cfg.MongoDB.TLS.ClientCert,
			cfg.MongoDB.TLS.ClientKey,
			cfg.MongoDB.TLS.ServerName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
	}
	return export.NewMongoSink(ctx, export.MongoConfig{
		URI:              cfg.MongoDB.URI,
		Database:         cfg.MongoDB.Database,
		CollectionPrefix: cfg.MongoDB.CollectionPrefix,
		Timeout:          cfg.MongoDB.Timeout,
		MaxPoolSize:      cfg.MongoDB.MaxPoolSize,
		TTLDays:          cfg.MongoDB.TTLDays,
		X509:             cfg.MongoDB.TLS.X509,
	}, tlsConfig, logger)
}

func (a *app) runExport(cmd *cobra.Command, path string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := a.cfg.Export
	source := filepath.Base(path)
	loadID := uuid.NewString()
	logger := a.logger.With(zap.String("source", source), zap.String("load_id", loadID))

	rd, err := reader.Open(ctx, path, reader.Options{
		Logger:   a.logger,
		Password: a.passwordPrompter(),
	})
	if err != nil {
		return err
	}
	defer rd.Close()

	base, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	sink := export.NewRetryingSink(base, cfg.MaxRetries, logger)
	defer func() {
		if err := sink.Close(context.Background()); err != nil {
			logger.Error("Failed to close sink", zap.Error(err))
		}
	}()

	batcher := export.NewBatcher(source, loadID, cfg.BatchSize, cfg.MaxWait, cfg.QueueSize, logger, sink)
	batchErr := make(chan error, 1)
	go func() {
		err := batcher.Start(ctx)
		if err != nil {
			cancel()
		}
		batchErr <- err
	}()

	if a.cfg.Progress {
		go logProgress(ctx, rd, logger)
	}

	logger.Info("Exporting trace file", zap.String("sink", cfg.Sink), zap.String("size", humanize.IBytes(uint64(rd.Size()))))
	start := time.Now()
	runErr := loader.New(logger).Run(ctx, rd, batcher.RecordChan())
	if err := <-batchErr; err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	logger.Info("Export complete",
		zap.Int("records", batcher.Sent()),
		zap.Int("sessions", rd.Sessions()),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %s records from %s (load %s)\n", humanize.Comma(int64(batcher.Sent())), source, loadID)
	return nil
}

func logProgress(ctx context.Context, rd *reader.Reader, logger *zap.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Decoding", zap.String("progress", fmt.Sprintf("%.1f%%", loader.Progress(rd))))
		}
	}
}
