package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/aevon-lab/attribution-rollup/internal/analytics"
	corecfg "github.com/aevon-lab/attribution-rollup/internal/core/config"
	"github.com/aevon-lab/attribution-rollup/internal/core/reconcile"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage"
	"github.com/aevon-lab/attribution-rollup/internal/core/storage/postgres"
	"github.com/aevon-lab/attribution-rollup/internal/lock"
	"github.com/aevon-lab/attribution-rollup/internal/migrations"
	"github.com/aevon-lab/attribution-rollup/internal/pipeline"
)

// loadConfig loads and validates the config, then the pipeline variants it
// points at.
func loadConfig(path string) (*corecfg.Config, *pipeline.FileSystemVariantRepository, error) {
	cfg, err := corecfg.Load(existingPath(path))
	if err != nil {
		return nil, nil, err
	}

	variants, err := pipeline.NewFileSystemVariantRepository(cfg.Pipelines.ConfigDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pipeline variants: %w", err)
	}
	if cfg.Pipelines.RequireVariants && len(variants.Variants()) == 0 {
		return nil, nil, fmt.Errorf("no pipeline variants found in %s", cfg.Pipelines.ConfigDir)
	}
	slog.Info("Loaded pipeline variants", "dir", cfg.Pipelines.ConfigDir, "count", len(variants.Variants()))
	return cfg, variants, nil
}

// existingPath returns "" for a missing config file so Load falls back to
// defaults and ROLLUP_ env vars.
func existingPath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file not found, using defaults and env", "path", path)
		return ""
	}
	return path
}

// stores bundles the table store and run log. db is nil for the memory
// backend.
type stores struct {
	table   storage.TableStore
	runs    storage.RunLog
	db      *sql.DB
	adapter *postgres.Adapter
}

func (s stores) Close() {
	if s.adapter != nil {
		if err := s.adapter.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}
}

func openStores(cfg *corecfg.Config) (stores, error) {
	if cfg.Store.Backend == "memory" {
		slog.Warn("Using in-memory table store; nothing is persisted")
		return stores{table: storage.NewMemoryTableStore(), runs: storage.NewMemoryRunLog()}, nil
	}

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return stores{}, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
		db.Close()
		return stores{}, fmt.Errorf("failed to run database migrations: %w", err)
	}
	adapter, err := postgres.NewAdapterWithDB(db)
	if err != nil {
		db.Close()
		return stores{}, err
	}
	return stores{table: adapter, runs: postgres.NewRunAdapter(db), db: db, adapter: adapter}, nil
}

// openQuerier returns nil for analytics backend "none".
func openQuerier(ctx context.Context, cfg corecfg.AnalyticsConfig) (analytics.Querier, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "posthog":
		return analytics.NewPostHogClient(cfg.PostHog.Host, cfg.PostHog.ProjectID, cfg.PostHog.APIKey, cfg.TimeoutDuration()), noop, nil
	case "clickhouse":
		q, err := analytics.OpenClickHouse(ctx, analytics.ClickHouseOptions{
			Addrs:       cfg.ClickHouse.Addrs(),
			Database:    cfg.ClickHouse.Database,
			Username:    cfg.ClickHouse.Username,
			Password:    cfg.ClickHouse.Password,
			DialTimeout: cfg.TimeoutDuration(),
		})
		if err != nil {
			return nil, noop, err
		}
		return q, func() { q.Close() }, nil
	default:
		return nil, noop, nil
	}
}

func newLocker(cfg corecfg.LockConfig) (lock.Locker, func()) {
	if cfg.Backend != "redis" {
		return lock.NewLocalLocker(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return lock.NewRedisLocker(client, cfg.TTLDuration()), func() { client.Close() }
}

func applierOptions(cfg corecfg.StoreConfig) reconcile.ApplierOptions {
	return reconcile.ApplierOptions{
		BatchSize:         cfg.BatchSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}
