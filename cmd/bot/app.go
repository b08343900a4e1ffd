package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"vpnbot/internal/config"
	"vpnbot/internal/database"
	"vpnbot/internal/lifecycle"
	"vpnbot/internal/logger"
	"vpnbot/internal/outline"
	"vpnbot/internal/payment"
	"vpnbot/internal/plans"
	"vpnbot/internal/repository"
)

// lockTTL bounds how long a crashed process can hold a user lock. Live
// holders extend it while they work.
const lockTTL = 2 * time.Minute

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	rdb      *redis.Client
	repo     *repository.Repository
	catalog  *plans.Catalog
	outline  *outline.Client
	payments *payment.Client
	engine   *lifecycle.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.Init(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	catalog, err := plans.Load(cfg.PlansFile)
	if err != nil {
		return nil, err
	}

	db, err := database.ConnectPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		db:       db,
		rdb:      rdb,
		repo:     repository.New(db),
		catalog:  catalog,
		outline:  outline.NewClient(cfg.Outline),
		payments: payment.NewClient(cfg.Yookassa),
	}
	a.engine = lifecycle.NewEngine(
		a.repo,
		a.outline,
		a.payments,
		a.catalog,
		database.NewRedisLocker(rdb, lockTTL),
		logger.WithComponent("lifecycle"),
	)
	return a, nil
}

func (a *app) close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("failed to close redis", "error", err)
	}
	closeDB(a.db)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) pingDB(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *app) pingRedis(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}
