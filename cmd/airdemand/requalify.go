package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/engine"
	"github.com/richroberts-prog/air-demand/internal/lock"
	"github.com/richroberts-prog/air-demand/internal/model"
)

var (
	requalifyTier   string
	requalifyStatus string
)

var requalifyCmd = &cobra.Command{
	Use:   "requalify",
	Short: "Re-run gate, scoring and trend over stored roles",
	Long: `Re-assess stored roles under the current rules, e.g. after editing the
qualification floors or scoring weights. Only the assessment columns are
rewritten; snapshots and change events are left alone. Holds the run lock
so it never interleaves with an ingestion.`,
	RunE: runRequalify,
}

func init() {
	requalifyCmd.Flags().StringVar(&requalifyTier, "tier", "", "comma-separated stored tiers to reassess (default all)")
	requalifyCmd.Flags().StringVar(&requalifyStatus, "status", "ACTIVE", "comma-separated lifecycle statuses to reassess")
	rootCmd.AddCommand(requalifyCmd)
}

func runRequalify(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	statuses, err := parseStatuses(requalifyStatus)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, st := mustSetup(ctx, logger)
	defer st.Close()

	eng, err := engine.New(cfg, st, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	locker, err := lock.Open(ctx, cfg.Lock, logger)
	if err != nil {
		logger.Error("failed to open run lock", "error", err)
		os.Exit(1)
	}
	defer locker.Close()

	release, err := locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, model.ErrRunInProgress) {
			logger.Warn("an ingestion run holds the lock, try again later")
		} else {
			logger.Error("failed to acquire run lock", "error", err)
		}
		os.Exit(1)
	}

	res, err := eng.Reassess(ctx, model.RoleQuery{
		Tiers:    splitList[model.Tier](requalifyTier, strings.ToUpper),
		Statuses: statuses,
	})
	release()
	if err != nil {
		logger.Error("requalify failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Reassessed %d roles, %d changed tier\n", res.Assessed, len(res.Moves))
	if len(res.Moves) == 0 {
		return nil
	}
	fmt.Println(strings.Repeat("─", 44))
	for _, m := range res.Moves {
		fmt.Printf("%-14s %-9s → %s\n", truncate(m.ExternalID, 14), m.From, m.To)
	}
	return nil
}
