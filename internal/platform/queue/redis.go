package queue

import (
	"context"
	"fmt"

	"github.com/anheplast/curiosmaze/internal/platform/config"
	"github.com/anheplast/curiosmaze/internal/platform/logger"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

// ConnectRedis opens the client shared by the session store and the evaluation queue.
func ConnectRedis(ctx context.Context, cfg *config.Config) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return fmt.Errorf("could not connect to Redis: %w", err)
	}
	RDB = rdb
	logger.Info(ctx, "connected to Redis")
	return nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logger.Info(context.Background(), "redis connection closed")
	}
}
