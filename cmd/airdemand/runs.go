package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/model"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List ingestion runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum rows")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	ctx := context.Background()

	_, st := mustSetup(ctx, logger)
	defer st.Close()

	if len(args) == 1 {
		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "no run with id %q\n", args[0])
			} else {
				logger.Error("failed to load run", "error", err)
			}
			os.Exit(1)
		}
		printRun(run)
		return nil
	}

	runs, err := st.ListRuns(ctx, runsLimit)
	if err != nil {
		logger.Error("failed to list runs", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%-36s %-10s %-9s %-16s %9s %6s %5s %8s %8s %s\n",
		"Run ID", "Status", "Trigger", "Started", "Duration", "Found", "New", "Changed", "Missing", "Anomaly")
	fmt.Println(strings.Repeat("─", 124))
	for _, r := range runs {
		anomaly := ""
		if r.Anomaly {
			anomaly = "yes"
		}
		fmt.Printf("%-36s %-10s %-9s %-16s %9s %6d %5d %8d %8d %s\n",
			r.RunID, r.Status, r.TriggeredBy, fmtTime(r.StartedAt), r.Duration().Round(time.Second),
			r.Counts.Found, r.Counts.New, r.Counts.Changed, r.Counts.Missing, anomaly)
	}
	return nil
}
