package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Soundy/core/auth"
	"Soundy/db"
	"Soundy/logger"
	"Soundy/model"
	"Soundy/repository"
	"Soundy/server"
	"Soundy/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// backend holds the stores of the development backend and how to release them.
type backend struct {
	users   repository.UserRepository
	tokens  repository.RefreshTokenRepository
	tracks  repository.TrackRepository
	media   storage.MediaStore
	rdb     *redis.Client
	closers []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("[Server] 释放资源失败", logger.ErrorField(err))
		}
	}
}

// redisClient connects on first use and shares the connection between stores.
func (b *backend) redisClient() (*redis.Client, error) {
	if b.rdb != nil {
		return b.rdb, nil
	}
	rdb, err := db.ConnectRedis(cfg)
	if err != nil {
		return nil, err
	}
	b.rdb = rdb
	b.closers = append(b.closers, rdb.Close)
	return rdb, nil
}

// openMediaStore builds the configured media store, with the redis segment cache in front when
// MEDIA_CACHE_TTL is set.
func (b *backend) openMediaStore(ctx context.Context) error {
	switch cfg.MediaStore {
	case "local":
		local, err := storage.NewLocalStore(cfg.MediaDir)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, local.Close)
		b.media = local
	case "minio":
		store, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return err
		}
		b.media = store
	default:
		return fmt.Errorf("unknown media store %q", cfg.MediaStore)
	}

	if cfg.MediaCacheTTL > 0 {
		rdb, err := b.redisClient()
		if err != nil {
			return err
		}
		b.media = storage.NewCachedStore(b.media, rdb, cfg.MediaCacheTTL)
	}
	return nil
}

func openBackend(ctx context.Context) (*backend, error) {
	b := &backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	// tracks live next to the users
	switch cfg.UserStore {
	case "memory":
		b.users = repository.NewMemoryUserRepository()
		b.tracks = repository.NewMemoryTrackRepository()
	case "mysql":
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { return db.CloseGormDB(gdb) })
		if err := db.AutoMigrateModels(gdb, &model.User{}, &model.Track{}); err != nil {
			return nil, err
		}
		b.users = repository.NewGormUserRepository(gdb)
		b.tracks = repository.NewGormTrackRepository(gdb)
	default:
		return nil, fmt.Errorf("unknown user store %q", cfg.UserStore)
	}

	switch cfg.TokenStore {
	case "memory":
		b.tokens = repository.NewMemoryTokenRepository()
	case "redis":
		rdb, err := b.redisClient()
		if err != nil {
			return nil, err
		}
		b.tokens = repository.NewRedisTokenRepository(rdb, "")
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}

	if err := b.openMediaStore(ctx); err != nil {
		return nil, err
	}

	ok = true
	return b, nil
}

var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "启动开发用后端服务",
	Long: `启动开发用后端：提供登录注册、令牌刷新、用户信息接口，
并以 HLS 形式提供曲目清单与分片。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		logger.Info("[Server] 后端存储就绪",
			logger.String("users", cfg.UserStore),
			logger.String("tokens", cfg.TokenStore),
			logger.String("media", cfg.MediaStore))

		h := server.NewAPIHandler(server.Deps{
			Users:      b.users,
			Tokens:     b.tokens,
			Tracks:     b.tracks,
			Media:      b.media,
			JWT:        auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL),
			RefreshTTL: cfg.RefreshTokenTTL,
		})
		return server.Run(ctx, cfg.ServerAddr, h.Router())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
