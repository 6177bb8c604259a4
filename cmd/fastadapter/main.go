package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/fastadapter/internal/batch"
	"github.com/livinlefevreloca/fastadapter/internal/config"
	"github.com/livinlefevreloca/fastadapter/internal/db"
	"github.com/livinlefevreloca/fastadapter/internal/kafka"
	"github.com/livinlefevreloca/fastadapter/internal/lagprobe"
	"github.com/livinlefevreloca/fastadapter/internal/logging"
	"github.com/livinlefevreloca/fastadapter/internal/notifier"
	"github.com/livinlefevreloca/fastadapter/internal/router"
	"github.com/livinlefevreloca/fastadapter/internal/stats"
	"github.com/livinlefevreloca/fastadapter/internal/syncer"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "", "Path to configuration file (TOML)")
	envFile := flag.String("env-file", "", "Path to a .env file of FASTADAPTER_* overrides")
	flag.Parse()

	if err := run(*configFile, *envFile); err != nil {
		slog.Error("fastadapter exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configFile, envFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize structured logger
	logger, logCloser, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting fastadapter",
		"config_file", configFile,
		"listen", cfg.Server.ListenAddr(),
		"window", cfg.Batch.Window)

	// Open database connection; migrations run as part of opening
	logger.Info("connecting to database", "driver", cfg.Database.Driver, "dsn", cfg.Database.DSN)
	database, err := db.OpenWithConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	version, err := database.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	logger.Info("database schema ready", "version", version)

	// Summary sinks
	writers := syncer.MultiWriter{syncer.NewDBWriter(database)}
	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = kafka.New(cfg.Kafka, logger.With("component", "kafka"))
		if err != nil {
			return err
		}
		writers = append(writers, publisher)
	}

	summarySyncer, err := syncer.NewSyncer(cfg.Syncer, writers, logger.With("component", "syncer"))
	if err != nil {
		return err
	}
	summarySyncer.Start()

	collector, err := stats.NewStatsCollector(cfg.Stats, stats.NewDBAdapter(database), logger.With("component", "stats"))
	if err != nil {
		return err
	}
	collector.Start()

	// Batching core
	scheduler, err := batch.NewScheduler(cfg.Batch, nil, nil, logger.With("component", "batch"))
	if err != nil {
		return err
	}
	scheduler.AddObserver(summarySyncer.Observe)
	scheduler.AddObserver(collector.ObserveBatch)

	// Outbound and inbound HTTP
	notify, err := notifier.New(cfg.Notifier, logger.With("component", "notifier"))
	if err != nil {
		return err
	}
	defer notify.CloseIdleConnections()

	rt, err := router.New(cfg.Router, scheduler, notify, logger.With("component", "router"))
	if err != nil {
		return err
	}
	rt.AddObserver(collector.ObserveRequest)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           rt.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.Lag.Enabled {
		probe, err := lagprobe.New(cfg.Lag, logger.With("component", "lagprobe"))
		if err != nil {
			return err
		}
		probe.AddObserver(collector.ObserveLag)
		g.Go(func() error {
			return probe.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	runErr := g.Wait()

	// Release anything still queued, then persist diagnostics
	scheduler.Drain()
	shutdown(logger, "syncer", summarySyncer.Shutdown)
	shutdown(logger, "stats collector", collector.Stop)
	if publisher != nil {
		shutdown(logger, "kafka publisher", publisher.Close)
	}

	logger.Info("fastadapter stopped")
	return runErr
}

// shutdown runs one shutdown step, logging rather than aborting on failure
func shutdown(logger *slog.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logger.Error("shutdown step failed", "component", name, "error", err)
	}
}
