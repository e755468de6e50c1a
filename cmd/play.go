package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"Soundy/core/hls"
	"Soundy/core/output"
	"Soundy/core/player"
	"Soundy/logger"
	"Soundy/model"
	"Soundy/remote"
	"Soundy/server"

	"github.com/spf13/cobra"
)

var (
	playOutput string
	playRemote string
	playNative bool
)

// audioOutput is a player output owned by the process.
type audioOutput interface {
	player.Output
	Close() error
}

// newOutput builds the named output. tokens authorize the requests an ffplay output makes on its own.
func newOutput(kind string, tokens player.TokenSource) (audioOutput, error) {
	tick := output.WithTick(cfg.OutputTick)
	switch kind {
	case "headless":
		return output.NewHeadless(tick), nil
	case "ffplay":
		return output.NewPipe(cfg.FFplayPath, tokens, tick)
	default:
		return nil, fmt.Errorf("unknown output %q", kind)
	}
}

var playCmd = &cobra.Command{
	Use:   "play [trackID]",
	Short: "启动播放器，并在本地开放远程控制接口",
	Long: `启动播放会话。给出曲目ID时立即开始播放；播放器的其余操作通过
远程控制接口完成（HTTP + WebSocket）。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := newSessionEnv()
		if err != nil {
			return err
		}
		defer env.Close()
		restoreSession(ctx, env)

		out, err := newOutput(playOutput, env.state)
		if err != nil {
			return err
		}
		defer out.Close()

		var streamer player.Streamer
		if !playNative {
			streamer = hls.NewStreamer(hls.Config{
				ManifestTimeout: cfg.ManifestTimeout,
				RequestTimeout:  cfg.HLSRequestTimeout,
				SegmentRetries:  cfg.HLSSegmentRetries,
				MaxBuffer:       cfg.HLSMaxBuffer,
			}, &http.Client{})
		}

		ctrl := player.NewController(out, streamer, env.state, cfg.MediaURL, player.Options{
			MaxNetworkRecoveries: cfg.MaxNetworkRecoveries,
			MaxMediaRecoveries:   cfg.MaxMediaRecoveries,
		})
		defer ctrl.Close()
		// logging out stops playback
		env.state.OnClear(ctrl.Teardown)

		if len(args) == 1 {
			if err := bindByID(ctx, env, ctrl, args[0]); err != nil {
				return err
			}
		}

		api := remote.NewHandler(ctrl, env.services.Auth, env.services.Tracks)
		logger.Info("[CLI] 远程控制接口已启动", logger.String("addr", playRemote), logger.String("output", playOutput))
		return server.Run(ctx, playRemote, api.Router())
	},
}

// bindByID binds a track, with its title and duration when the track API knows it.
func bindByID(ctx context.Context, env *sessionEnv, ctrl *player.Controller, trackID string) error {
	d := model.TrackDescriptor{ID: trackID}
	if track, err := env.services.Tracks.ByID(ctx, trackID); err != nil {
		logger.Warn("[CLI] 获取曲目信息失败，仅按ID播放", logger.String("trackId", trackID), logger.ErrorField(err))
	} else {
		d = track.Descriptor()
	}
	return ctrl.BindTrack(d)
}

func init() {
	playCmd.Flags().StringVarP(&playOutput, "output", "o", "", "音频输出：headless 或 ffplay（默认读取 PLAYER_OUTPUT）")
	playCmd.Flags().StringVar(&playRemote, "remote", "", "远程控制监听地址（默认读取 REMOTE_ADDR）")
	playCmd.Flags().BoolVar(&playNative, "native", false, "不使用内置 HLS 引擎，由 ffplay 直接拉流")

	// flag defaults come from the config, which is only loaded once the command runs
	playCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if playOutput == "" {
			playOutput = cfg.PlayerOutput
		}
		if playRemote == "" {
			playRemote = cfg.RemoteAddr
		}
		if playNative && playOutput != "ffplay" {
			logger.Warn("[CLI] --native 需要 ffplay 输出，已切换", logger.String("output", "ffplay"))
			playOutput = "ffplay"
		}
	}
	rootCmd.AddCommand(playCmd)
}
