package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/digest"
	"github.com/richroberts-prog/air-demand/internal/model"
)

var (
	digestMark   string
	digestSince  string
	digestNotify bool
	digestCommit bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Show roles new or changed since the last digest",
	Long: "Builds the since-last-digest view for the configured tiers. The mark only advances with --commit, " +
		"so running without it is a preview.",
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().StringVar(&digestMark, "mark", digest.DefaultMark, "named digest mark to read and advance")
	digestCmd.Flags().StringVar(&digestSince, "since", "", "RFC3339 time or duration back from now; overrides --mark")
	digestCmd.Flags().BoolVar(&digestNotify, "notify", false, "send the digest through the configured notifier")
	digestCmd.Flags().BoolVar(&digestCommit, "commit", false, "advance the mark to now")
	rootCmd.AddCommand(digestCmd)
}

func runDigest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	ctx := context.Background()

	if digestSince != "" && digestCommit {
		fmt.Fprintln(os.Stderr, "--commit needs --mark, not --since")
		os.Exit(1)
	}
	since, err := parseSince(digestSince, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, st := mustSetup(ctx, logger)
	defer st.Close()

	b := digest.NewBuilder(st, cfg.Digest.Tiers)
	var d model.Digest
	if digestSince != "" {
		d, err = b.Since(ctx, since)
	} else {
		d, err = b.SinceMark(ctx, digestMark)
	}
	if err != nil {
		logger.Error("failed to build digest", "error", err)
		os.Exit(1)
	}

	printDigest(d)

	if digestNotify && !d.Empty() {
		n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
		if err := n.Notify(d); err != nil {
			logger.Error("failed to send digest", "error", err)
			os.Exit(1)
		}
	}
	if digestCommit {
		if err := b.Commit(ctx, digestMark, d); err != nil {
			logger.Error("failed to commit digest", "error", err)
			os.Exit(1)
		}
		logger.Info("digest mark advanced", "mark", digestMark, "at", d.GeneratedAt)
	}
	return nil
}

func printDigest(d model.Digest) {
	since := "the beginning"
	if !d.Since.IsZero() {
		since = fmtTime(d.Since)
	}
	fmt.Printf("Digest since %s: %d new, %d changed\n", since, len(d.New), len(d.Changed))

	section := func(title string, entries []model.DigestEntry) {
		if len(entries) == 0 {
			return
		}
		fmt.Printf("\n%s\n%s\n", title, strings.Repeat("─", 60))
		for _, e := range entries {
			r := e.Role
			score := "  -  "
			if s := r.Assessment.Scores; s != nil {
				score = fmt.Sprintf("%.2f ", s.Combined)
			}
			fmt.Printf("%s %-9s %s at %s\n", score, r.Assessment.Tier, r.Fields.Title, r.Fields.Company.Name)
			for _, c := range e.Changes {
				if c.Field == "" {
					fmt.Printf("        ↳ %s\n", c.Type)
					continue
				}
				fmt.Printf("        ↳ %s: %s → %s\n", c.Field, orDash(c.OldValue), orDash(c.NewValue))
			}
		}
	}
	section("New roles", d.New)
	section("Changed roles", d.Changed)
}
