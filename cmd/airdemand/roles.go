package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/store"
)

var (
	rolesTier    string
	rolesStatus  string
	rolesTrend   string
	rolesDisplay string
	rolesSort    string
	rolesAsc     bool
	rolesLimit   int
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List tracked roles",
	Long:  "Prints the current-state role table, filtered and sorted like GET /api/v1/roles.",
	RunE:  runRoles,
}

func init() {
	rolesCmd.Flags().StringVar(&rolesTier, "tier", "QUALIFIED,MAYBE", "comma-separated tiers (empty for all)")
	rolesCmd.Flags().StringVar(&rolesStatus, "status", "ACTIVE", "comma-separated lifecycle statuses (empty for all)")
	rolesCmd.Flags().StringVar(&rolesTrend, "trend", "", "comma-separated trends: surging, stalled, hired")
	rolesCmd.Flags().StringVar(&rolesDisplay, "display-tier", "", "comma-separated display tiers: hot, warm, lukewarm, cold")
	rolesCmd.Flags().StringVar(&rolesSort, "sort", "combined", "sort by combined, engineer, headhunter, first_seen, last_seen or salary")
	rolesCmd.Flags().BoolVar(&rolesAsc, "asc", false, "sort ascending")
	rolesCmd.Flags().IntVarP(&rolesLimit, "limit", "n", 50, "maximum rows")
	rootCmd.AddCommand(rolesCmd)
}

func runRoles(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	ctx := context.Background()

	if !store.ValidSort(rolesSort) {
		fmt.Fprintf(os.Stderr, "unknown sort key %q\n", rolesSort)
		os.Exit(1)
	}
	statuses, err := parseStatuses(rolesStatus)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	_, st := mustSetup(ctx, logger)
	defer st.Close()

	roles, err := st.ListRoles(ctx, model.RoleQuery{
		Tiers:        splitList[model.Tier](rolesTier, strings.ToUpper),
		Statuses:     statuses,
		Trends:       splitList[model.TrendLabel](rolesTrend, strings.ToLower),
		DisplayTiers: splitList[model.DisplayTier](rolesDisplay, strings.ToLower),
		Sort:         rolesSort,
		Ascending:    rolesAsc,
		Limit:        rolesLimit,
	})
	if err != nil {
		logger.Error("failed to list roles", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%-14s %-9s %-6s %-6s %-9s %-8s %-40s %s\n", "External ID", "Tier", "Score", "Excite", "Display", "Trend", "Title", "Company")
	fmt.Println(strings.Repeat("─", 117))
	for _, r := range roles {
		score, excite, display := "-", "-", "-"
		if s := r.Assessment.Scores; s != nil {
			score = fmt.Sprintf("%.2f", s.Combined)
			excite = fmt.Sprintf("%.2f", s.Excitement.Score)
			display = string(s.DisplayTier)
		}
		trend := string(r.Assessment.Trend)
		if trend == "" {
			trend = "-"
		}
		fmt.Printf("%-14s %-9s %-6s %-6s %-9s %-8s %-40s %s\n",
			truncate(r.ExternalID, 14), r.Assessment.Tier, score, excite, display, trend,
			truncate(r.Fields.Title, 40), r.Fields.Company.Name)
	}

	fmt.Printf("\nTotal: %d roles\n", len(roles))
	return nil
}
