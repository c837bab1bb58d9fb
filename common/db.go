package common

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"garden/config"
	"garden/logging"
)

// ConnectDb opens the relational store selected by DB_DRIVER.
func ConnectDb(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBDSN)
	default:
		dialector = sqlite.Open(cfg.DBDSN)
	}

	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	}
	if cfg.IsProduction() {
		gormCfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.DBDriver, err)
	}
	logging.L.Info().Str("driver", cfg.DBDriver).Msg("opened database")
	return db, nil
}

// ConnectRedis returns nil when REDIS_URL is empty; callers fall back to in-process delivery.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		logging.L.Info().Msg("REDIS_URL not set - realtime changes stay in-process")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		// plain host:port is accepted too
		opts = &redis.Options{Addr: cfg.RedisURL}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logging.L.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return rdb, nil
}
