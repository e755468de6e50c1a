package cmd

import (
	"context"
	"fmt"
	"time"

	"Soundy/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。会话存储、刷新令牌与分片缓存都依赖该连接。`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		rdb, err := db.ConnectRedis(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer rdb.Close()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		const key, value = "soundy:healthcheck", "Redis connection successful!"
		if err := rdb.Set(ctx, key, value, time.Minute).Err(); err != nil {
			return fmt.Errorf("failed to set Redis key: %w", err)
		}
		got, err := rdb.Get(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to get Redis key: %w", err)
		}
		if got != value {
			return fmt.Errorf("unexpected value from Redis: got %s", got)
		}
		if err := rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete Redis key: %w", err)
		}

		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
