package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/richroberts-prog/air-demand/internal/api"
	"github.com/richroberts-prog/air-demand/internal/digest"
	"github.com/richroberts-prog/air-demand/internal/scheduler"
)

var (
	serveAddr     string
	serveSchedule bool
	serveReadOnly bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Long:  "Serve the read API over the role store. With --schedule the ingestion cron runs in the same process.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "also run the ingestion scheduler")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "disable POST /api/v1/runs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, st := mustSetup(ctx, logger)
	defer st.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	p, closeLock, err := buildPoller(ctx, cfg, st, nil, logger)
	if err != nil {
		logger.Error("failed to build poller", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	var trigger api.Trigger
	if !serveReadOnly {
		trigger = p
	}
	srv := api.NewServer(st, digest.NewBuilder(st, cfg.Digest.Tiers), trigger, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(gctx, addr)
	})
	if serveSchedule {
		sched := scheduler.NewScheduler(p, cfg.Schedule.CronSpec(), cfg.Schedule.Location, cfg.Schedule.RunOnStart, logger)
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	logger.Info("serve started", "schedule", serveSchedule, "read_only", serveReadOnly)
	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
