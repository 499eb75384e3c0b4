package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/hubwatch/internal/config"
	"github.com/goodtune/hubwatch/internal/harmony"
	"github.com/goodtune/hubwatch/internal/metrics"
	"github.com/goodtune/hubwatch/internal/notify"
	"github.com/goodtune/hubwatch/internal/record"
	"github.com/goodtune/hubwatch/internal/storage/redis"
	"github.com/goodtune/hubwatch/internal/systemd"
	"github.com/goodtune/hubwatch/internal/watch"
	"github.com/goodtune/hubwatch/internal/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the hubwatch daemon",
	Long:  `Start the minute sampler together with the snapshot and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("hub", cfg.Hub.Host).
		Msg("Starting hubwatch")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := redis.Open(cfg.Storage.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("redis_host", cfg.Storage.Redis.Host).
		Int("redis_port", cfg.Storage.Redis.Port).
		Msg("Storage initialized")

	// Initialize hub client
	hub := harmony.NewWebsocketClient(harmony.Config{
		Host:            cfg.Hub.Host,
		Port:            cfg.Hub.Port,
		Timeout:         parseDuration(cfg.Hub.RequestTimeout, 10*time.Second),
		CatalogCacheTTL: parseDuration(cfg.Hub.CatalogCacheTTL, time.Hour),
	}, logger)
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close hub session")
		}
	}()

	// Initialize notifier
	var notifier notify.Notifier
	if cfg.Notify.Broker == "" {
		logger.Warn().Msg("No notify broker configured, notifications disabled")
		notifier = notify.Disabled{}
	} else {
		notifier, err = notify.NewMQTTNotifier(notify.MQTTConfig{
			Broker:         cfg.Notify.Broker,
			ClientID:       cfg.Notify.ClientID,
			TopicPrefix:    cfg.Notify.TopicPrefix,
			PublishTimeout: parseDuration(cfg.Notify.PublishTimeout, 5*time.Second),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect notifier: %w", err)
		}
		logger.Info().
			Str("broker", cfg.Notify.Broker).
			Int("recipients", len(cfg.Notify.Recipients)).
			Msg("Notifier connected")
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close notifier")
		}
	}()

	// Initialize watcher
	watcher := watch.New(watch.Config{
		Hub: cfg.Hub.Host,
		Thresholds: record.Thresholds{
			MaxMinutes:      cfg.Limits.MaxMinutes,
			WarnPercentages: cfg.Limits.WarnPercentages,
		},
		Recipients: cfg.Notify.Recipients,
		Interval:   cfg.TickInterval(),
	}, hub, store.Records(), notifier, logger)

	// Initialize snapshot server
	webAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	webServer := web.NewServer(webAddr, watcher, logger)
	if sdListeners.HTTP != nil {
		webServer.SetListener(sdListeners.HTTP)
	}
	if err := webServer.Start(); err != nil {
		return fmt.Errorf("failed to start snapshot server: %w", err)
	}

	// Initialize metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Start the sampling loop
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watcherDone := make(chan error, 1)
	go func() {
		watcherDone <- watcher.Run(ctx)
	}()

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("sd_notify ready failed")
	}

	logger.Info().Msg("hubwatch startup complete")
	logger.Info().Msgf("Snapshot: http://%s/", webAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Wait for shutdown signal or a fatal watcher error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
	case runErr = <-watcherDone:
		if runErr != nil {
			logger.Error().Err(runErr).Msg("Watcher failed")
		}
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("sd_notify stopping failed")
	}

	cancel()

	if err := webServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping snapshot server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("hubwatch stopped")
	return runErr
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
