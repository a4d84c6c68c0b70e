package database

import (
	"context"
	"time"

	"optifish/pkg/config"
	"optifish/pkg/logger"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// InitRedis returns nil, nil when no address is configured.
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, pkgerrors.Wrapf(err, "ping redis %s", cfg.Address)
	}

	logger.Info().Str("addr", cfg.Address).Msg("redis connected")
	return rdb, nil
}
