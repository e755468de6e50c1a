package cmd

import (
	"fmt"
	"os"

	"Soundy/config"
	"Soundy/logger"

	"github.com/spf13/cobra"
)

// cfg is loaded once before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "soundy",
	Short: "Soundy is a music streaming client with a development backend.",
	Long: `Soundy 提供带会话管理的音乐流媒体客户端：登录、自动刷新令牌、HLS 播放，
以及用于本地开发的后端服务。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
			Compress:   cfg.LogCompress,
		})
	},
}

// Execute executes the root command.
func Execute() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
