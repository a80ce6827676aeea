package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ingestion daemon",
	Long:  "Start the cron scheduler; ingests at the configured hours and blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, st := mustSetup(ctx, logger)
	defer st.Close()

	logger.Info("config loaded",
		"store", cfg.Store.Driver,
		"source", cfg.Source.Type,
		"lock", cfg.Lock.Backend,
		"schedule", cfg.Schedule.CronSpec(),
		"timezone", cfg.Schedule.Timezone,
		"notification", cfg.Notification.Type,
	)

	p, closeLock, err := buildPoller(ctx, cfg, st, nil, logger)
	if err != nil {
		logger.Error("failed to build poller", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	sched := scheduler.NewScheduler(p, cfg.Schedule.CronSpec(), cfg.Schedule.Location, cfg.Schedule.RunOnStart, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
