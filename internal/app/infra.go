package app

import (
	"context"
	"errors"

	"github.com/divyanshdhote/server-actions/internal/config"
	"github.com/divyanshdhote/server-actions/internal/db"
	"github.com/divyanshdhote/server-actions/internal/logger"
	"github.com/divyanshdhote/server-actions/internal/redis"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(database.DB); err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("database ready", nil)

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("redis ready", map[string]any{
		"addr": cfg.RedisAddr,
	})

	return &Infra{
		DB:    database,
		Redis: redisClient,
	}, nil
}

// Close releases both connections.
func (i *Infra) Close() error {
	return errors.Join(i.DB.Close(), i.Redis.Close())
}
