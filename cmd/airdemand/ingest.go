package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/engine"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/source"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion and exit",
	Long:  "One-shot run: fetch a batch from the configured source (or --file), ingest it, notify, print the run summary.",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "ingest this JSON export instead of the configured source")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, st := mustSetup(ctx, logger)
	defer st.Close()

	var src model.BatchSource
	if ingestFile != "" {
		src = source.NewFileSource(ingestFile)
	}

	p, closeLock, err := buildPoller(ctx, cfg, st, src, logger)
	if err != nil {
		logger.Error("failed to build poller", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	res, err := p.Poll(engine.WithTrigger(ctx, "cli"))
	if res.Run.RunID != "" {
		printRun(res.Run)
	}
	if err != nil {
		if errors.Is(err, model.ErrRunInProgress) {
			logger.Warn("another run holds the lock, try again later")
		} else {
			logger.Error("ingestion failed", "error", err)
		}
		os.Exit(1)
	}
	return nil
}

func printRun(run model.ScrapeRun) {
	c := run.Counts
	fmt.Printf("Run %s  %s  (%s, triggered by %s)\n", run.RunID, run.Status, run.Duration().Round(time.Millisecond), run.TriggeredBy)
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("%-12s %6d    %-12s %6d\n", "Found", c.Found, "Qualified", c.Qualified)
	fmt.Printf("%-12s %6d    %-12s %6d\n", "New", c.New, "Updated", c.Updated)
	fmt.Printf("%-12s %6d    %-12s %6d\n", "Changed", c.Changed, "Unchanged", c.Unchanged)
	fmt.Printf("%-12s %6d    %-12s %6d\n", "Missing", c.Missing, "Disappeared", c.Disappeared)
	fmt.Printf("%-12s %6d    %-12s %6d\n", "Reappeared", c.Reappeared, "Rejected", c.Rejected)
	if run.Anomaly {
		fmt.Println("\nBatch flagged as anomalous: no roles were marked missing.")
	}
	for _, w := range run.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, e := range run.Errors {
		fmt.Printf("error:   %s\n", e)
	}
}
