package main

import (
	"fmt"

	"github.com/mymmrac/telego"
	"github.com/spf13/cobra"

	"vpnbot/internal/bot"
	"vpnbot/internal/database"
	"vpnbot/internal/logger"
	"vpnbot/internal/worker"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := database.Migrate(a.db); err != nil {
				return err
			}
			a.logger.Info("database migrated")
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local access keys with the VPN server once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := worker.NewReconciler(a.repo, a.outline, logger.WithComponent("reconciler")).SyncKeys(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server keys: %d, local keys: %d, tombstoned: %d, failures: %d\n",
				res.ProviderKeys, res.LocalKeys, len(res.Deleted), len(res.Failures))
			return nil
		},
	}
}

func newNotifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Send expiry reminders once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			api, err := telego.NewBot(a.cfg.Telegram.BotToken)
			if err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}
			notifier := bot.NewNotifier(api, logger.WithComponent("notifier"))

			res, err := worker.NewExpiryNotifier(
				a.repo,
				a.catalog,
				notifier,
				database.NewRedisMarks(a.rdb),
				a.cfg.Schedule.ExpiryNotificationDays,
				logger.WithComponent("expiry"),
			).Notify(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "candidates: %d, sent: %d, skipped: %d, failures: %d\n",
				res.Candidates, res.Sent, res.Skipped, len(res.Failures))
			return nil
		},
	}
}
