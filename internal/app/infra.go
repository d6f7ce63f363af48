package app

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/davidmonro/fence/internal/auth/resolver"
	"github.com/davidmonro/fence/internal/config"
	"github.com/davidmonro/fence/internal/db"
	"github.com/davidmonro/fence/internal/logger"
	"github.com/davidmonro/fence/internal/redis"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
	Store resolver.Store
}

// Close releases the connection pools.
func (i *Infra) Close() error {
	var err error
	if i.Redis != nil {
		err = i.Redis.Close()
	}
	if i.DB != nil {
		if dbErr := i.DB.Close(); dbErr != nil {
			err = dbErr
		}
	}
	return err
}

// setupInfra connects Postgres when DATABASE_DSN is set and falls back to
// the in-memory store otherwise. Redis is always required.
func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN == "" {
		if cfg.IsProduction() {
			return nil, errors.New("DATABASE_DSN is required in production")
		}
		logger.Warn("DATABASE_DSN not set, using in-memory user store", nil)
		infra.Store = resolver.NewMemoryStore()
	} else {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}

		if err := db.RunGatewayMigration(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}

		logger.Info("database ready", nil)
		infra.DB = &db.DB{DB: sqlDB}
		infra.Store = resolver.NewDBStore(infra.DB)
	}

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	infra.Redis = redisClient

	logger.Info("redis ready", map[string]any{
		"addr": cfg.RedisAddr,
	})

	return infra, nil
}
