package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/config"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/events"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/export"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/model"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/omero"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/pipeline"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/poller"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/pool"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/recovery"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/runner"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/server"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store"
	"github.com/Cellular-Imaging-Amsterdam-UMC/omero-adi/internal/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the import service",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Event mirror. The database row remains the source of truth; the
		// bus is a best-effort copy for downstream subscribers.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				pg.Close()
				return err
			}
			publisher = pub
			logger.Info("event mirror enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("event mirror disabled (ADI_NATS_URL not set)")
		}
		var log store.EventLog = events.NewMirroredLog(pg, publisher, logger)

		// Startup recovery runs before any polling so abandoned orders are
		// compensated and the watermark excludes pre-crash work.
		rec, err := recovery.Run(context.Background(), log, cfg.Lookback, logger)
		if err != nil {
			publisher.Close()
			pg.Close()
			return fmt.Errorf("startup recovery: %w", err)
		}
		logger.Info("recovery completed",
			"compensated", rec.Compensated, "watermark", rec.Watermark)

		// One importer per worker; each owns its own repository gateway so
		// sessions are never shared across concurrent orders.
		factory := func(worker int, workerLogger *slog.Logger) (pool.Importer, error) {
			gw := &omero.CLIGateway{
				Host:     cfg.OmeroHost,
				Port:     cfg.OmeroPort,
				User:     cfg.OmeroUser,
				Password: cfg.OmeroPassword,
				Binary:   cfg.OmeroBinary,
			}
			run := &runner.DockerRunner{
				Binary:  cfg.DockerBinary,
				Timeout: cfg.PreprocessTimeout,
			}
			opts := pipeline.Options{
				Retry: pipeline.Retry{
					Attempts: cfg.ConnectAttempts,
					Delay:    cfg.ConnectDelay,
				},
				SessionTTL:     cfg.SessionTTL,
				ManagedRepoDir: cfg.ManagedRepoDir,
			}
			return pipeline.New(log, gw, run, opts, workerLogger), nil
		}

		workers := pool.New(cfg.Workers, factory, logger)
		if err := workers.Start(context.Background()); err != nil {
			publisher.Close()
			pg.Close()
			return err
		}

		rewrite := model.PathRewrite{From: cfg.RewriteFrom, To: cfg.RewriteTo}
		watcher := poller.New(log, workers, cfg.PollInterval, rewrite, rec.Watermark, logger)
		watcher.Start()

		var scheduler *export.Scheduler
		if cfg.ExportInterval > 0 && cfg.ExportS3Bucket != "" {
			dest, err := export.NewS3Destination(
				context.Background(),
				cfg.ExportS3Bucket,
				cfg.ExportS3Prefix,
				cfg.ExportS3Region,
				cfg.ExportS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create export destination", "err", err)
			} else {
				scheduler = export.NewScheduler(log, []export.Destination{dest}, cfg.ExportInterval, logger)
				scheduler.Start()
				logger.Info("export scheduler started",
					"interval", cfg.ExportInterval, "bucket", cfg.ExportS3Bucket)
			}
		}

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.New(log, logger).Handler(),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("import service started",
			"workers", cfg.Workers,
			"poll_interval", cfg.PollInterval,
			"http_addr", cfg.HTTPAddr,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Shutdown order matters: the poller stops producing before the
		// pool drains, and the log closes last so in-flight orders can
		// still record their terminal events.
		watcher.Stop()
		logger.Info("poller stopped")

		workers.Stop()
		logger.Info("worker pool drained")

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := pg.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
