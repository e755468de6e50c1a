// Package db opens the shared MySQL and Redis connections.
package db

import (
	"context"
	"fmt"
	"net"
	"time"

	"Soundy/config"
	"Soundy/logger"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis 初始化Redis连接并测试连通性
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("[Redis] 连接成功", logger.String("addr", client.Options().Addr), logger.Int("db", cfg.RedisDB))
	return client, nil
}
