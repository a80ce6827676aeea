package main

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/richroberts-prog/air-demand/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Check the digest delivery channel",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Deliver a sample role digest",
	Long: `Delivers a digest holding one synthetic QUALIFIED role through the
configured channel (log or Slack webhook), without touching the store or the
digest watermark. Use it after changing notification settings.`,
	RunE: runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := setupNotifier(cfg, httpClient, logger)

	if err := notifier.SendTestMessage(n); err != nil {
		logger.Error("sample digest not delivered", "channel", cfg.Notification.Type, "error", err)
		os.Exit(1)
	}
	logger.Info("sample digest delivered", "channel", cfg.Notification.Type)
	return nil
}
