package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/engine"
	"github.com/richroberts-prog/air-demand/internal/lock"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/notifier"
	"github.com/richroberts-prog/air-demand/internal/poller"
	"github.com/richroberts-prog/air-demand/internal/ratelimit"
	"github.com/richroberts-prog/air-demand/internal/source"
	"github.com/richroberts-prog/air-demand/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "airdemand",
	Short: "Role lifecycle engine for recruiter job feeds",
	Long:  "Air Demand ingests scraped role batches, tracks each role's lifecycle, qualifies and scores it, and announces what is new or changed.",
	// Default to `start` so that `airdemand` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: AIRDEMAND_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it. A .env file in the
// working directory is loaded first so ${VAR} references can use it.
// Priority: explicit path arg > AIRDEMAND_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if path == "" {
		if env := os.Getenv("AIRDEMAND_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// mustSetup loads the config and opens the store, exiting on failure.
func mustSetup(ctx context.Context, logger *slog.Logger) (*config.Config, *store.SQLStore) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	return cfg, st
}

// buildPoller wires source, lock, engine and notifier into a poller. src may
// be nil to use the configured source. The returned closer releases the lock
// backend.
func buildPoller(ctx context.Context, cfg *config.Config, st *store.SQLStore, src model.BatchSource, logger *slog.Logger) (*poller.Poller, func(), error) {
	if src == nil {
		var err error
		limiter := ratelimit.NewLimiter(cfg.Source.MinDelay)
		src, err = source.Open(cfg.Source, limiter, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("opening source: %w", err)
		}
	}

	eng, err := engine.New(cfg, st, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building engine: %w", err)
	}

	locker, err := lock.Open(ctx, cfg.Lock, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run lock: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := setupNotifier(cfg, httpClient, logger)

	p := poller.NewPoller(src, locker, eng, st, n, cfg.Digest.Tiers, logger)
	closer := func() {
		if err := locker.Close(); err != nil {
			logger.Warn("closing run lock", "error", err)
		}
	}
	return p, closer, nil
}
