package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vpnbot/internal/bot"
	"vpnbot/internal/database"
	"vpnbot/internal/logger"
	"vpnbot/internal/server"
	"vpnbot/internal/worker"
)

var autoMigrate bool

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the payment webhook and the background jobs",
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Apply schema migrations on startup")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if autoMigrate {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
	}

	stats := func(ctx context.Context) (*worker.Stats, error) {
		return worker.ServerStats(ctx, a.repo, a.outline)
	}
	tg, err := bot.NewBot(a.cfg.Telegram.BotToken, a.engine, a.repo, a.catalog, stats, a.cfg.Telegram, logger.WithComponent("bot"))
	if err != nil {
		return err
	}
	notifier := tg.Notifier()
	marks := database.NewRedisMarks(a.rdb)

	allow, err := server.NewAllowList(a.cfg.Yookassa.AllowedCIDRs)
	if err != nil {
		return err
	}
	webhook := server.NewWebhookHandler(a.engine, a.repo, notifier, marks, logger.WithComponent("webhook"))
	srv := server.New(a.cfg.HTTP, allow, webhook, map[string]server.HealthCheck{
		"database": a.pingDB,
		"redis":    a.pingRedis,
	}, logger.WithComponent("http"))

	scheduler := worker.NewScheduler(logger.WithComponent("worker"), jobs(a, notifier, marks)...)

	a.logger.Info("service starting", "http_addr", a.cfg.HTTP.Addr, "plans", len(a.catalog.Paid()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		if err := tg.Start(gctx); err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.logger.Info("service stopped")
	return err
}

func jobs(a *app, notifier worker.Notifier, marks worker.Marks) []worker.Job {
	sched := a.cfg.Schedule

	reconciler := worker.NewReconciler(a.repo, a.outline, logger.WithComponent("reconciler"))
	reminders := worker.NewExpiryNotifier(a.repo, a.catalog, notifier, marks, sched.ExpiryNotificationDays, logger.WithComponent("expiry"))
	sweeper := worker.NewExpirySweeper(a.repo, a.engine, a.catalog, notifier, logger.WithComponent("expiry"))
	janitor := worker.NewPendingJanitor(a.repo, a.engine, notifier, sched.PendingTTL, logger.WithComponent("janitor"))

	return []worker.Job{
		{Name: "sync_keys", Interval: sched.SyncInterval, Run: func(ctx context.Context) error {
			_, err := reconciler.SyncKeys(ctx)
			return err
		}},
		{Name: "expiry_reminders", Interval: sched.ExpiryCheckInterval, Run: func(ctx context.Context) error {
			_, err := reminders.Notify(ctx)
			return err
		}},
		{Name: "expire_subscriptions", Interval: sched.ExpiryCheckInterval, Run: func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		}},
		{Name: "stale_checkouts", Interval: sched.ExpiryCheckInterval, Run: func(ctx context.Context) error {
			_, err := janitor.Sweep(ctx)
			return err
		}},
	}
}
