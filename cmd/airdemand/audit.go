package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/audit"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/qualify"
	"github.com/richroberts-prog/air-demand/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse roles and gate verdicts interactively (TUI)",
	Long:  "Shows the scope picker TUI, then launches the split-pane audit view. Roles are re-gated with the current config so rule edits show up before the next run.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	ctx := context.Background()

	cfg, st := mustSetup(ctx, logger)
	defer st.Close()

	runAudit(qualify.NewGate(cfg.Qualification, cfg.Investors), st, cfg.Schedule.Location)
	return nil
}

func runAudit(gate *qualify.Gate, st *store.SQLStore, loc *time.Location) {
	loadChanges := func(ctx context.Context, roleID int64, limit int) ([]model.RoleChange, error) {
		return st.ListChanges(ctx, model.ChangeQuery{RoleID: roleID, Limit: limit})
	}

	for {
		scopes := audit.DefaultScopes(time.Now())
		choice, err := audit.RunScopePicker(scopes)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		scope := scopes[choice]

		roles, err := audit.RunLoader(scope.Label, func(ctx context.Context) ([]model.Role, error) {
			return st.ListRoles(ctx, scope.Query)
		})
		if err != nil {
			fmt.Printf("Error loading roles: %v\n", err)
			continue
		}
		if len(roles) == 0 {
			fmt.Printf("No roles in %q.\n", scope.Label)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(roles, gate, loadChanges, loc)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
		// else: loop → back to picker
	}
}
