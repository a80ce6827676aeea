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

var (
	changesSince string
	changesRole  string
	changesRun   string
	changesType  string
	changesLimit int
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List detected field changes",
	Long:  "Prints the change log, newest first.",
	RunE:  runChanges,
}

func init() {
	changesCmd.Flags().StringVar(&changesSince, "since", "24h", "RFC3339 time or duration back from now (empty for all)")
	changesCmd.Flags().StringVar(&changesRole, "role", "", "only changes of this external role id")
	changesCmd.Flags().StringVar(&changesRun, "run", "", "only changes detected by this run id")
	changesCmd.Flags().StringVar(&changesType, "type", "", "comma-separated change types, e.g. SALARY_INCREASE,REAPPEARED")
	changesCmd.Flags().IntVarP(&changesLimit, "limit", "n", 100, "maximum rows")
	rootCmd.AddCommand(changesCmd)
}

func runChanges(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	ctx := context.Background()

	since, err := parseSince(changesSince, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, st := mustSetup(ctx, logger)
	defer st.Close()

	q := model.ChangeQuery{
		Since: since,
		Types: splitList[model.ChangeType](changesType, strings.ToUpper),
		Limit: changesLimit,
	}
	if changesRole != "" {
		role, err := st.GetRole(ctx, changesRole)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "no role with id %q\n", changesRole)
			} else {
				logger.Error("failed to load role", "error", err)
			}
			os.Exit(1)
		}
		q.RoleID = role.ID
	}
	if changesRun != "" {
		run, err := st.GetRun(ctx, changesRun)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "no run with id %q\n", changesRun)
			} else {
				logger.Error("failed to load run", "error", err)
			}
			os.Exit(1)
		}
		q.RunID = run.ID
	}

	changes, err := st.ListChanges(ctx, q)
	if err != nil {
		logger.Error("failed to list changes", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%-16s %-14s %-20s %s\n", "Detected", "External ID", "Type", "Change")
	fmt.Println(strings.Repeat("─", 90))
	for _, c := range changes {
		detail := ""
		if c.Field != "" {
			detail = fmt.Sprintf("%s: %s → %s", c.Field, orDash(c.OldValue), orDash(c.NewValue))
		}
		fmt.Printf("%-16s %-14s %-20s %s\n", fmtTime(c.DetectedAt), truncate(c.ExternalID, 14), c.Type, detail)
	}

	fmt.Printf("\nTotal: %d changes\n", len(changes))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
