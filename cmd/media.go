package cmd

import (
	"errors"
	"fmt"

	"Soundy/core/audio"
	"Soundy/logger"

	"github.com/spf13/cobra"
)

var ingestDir bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <trackID> <file|dir>",
	Short: "将音频转码为 HLS 并写入媒体存储",
	Long: `使用 ffmpeg 将音频文件转码为 HLS（index.m3u8 + 分片），写入 MEDIA_STORE
指定的存储（本地目录或 MinIO）。使用 --dir 时直接上传已有的 HLS 目录。`,
	Example: `  # 转码并上传
  soundy ingest t1 ./music/song.flac

  # 上传已切好的 HLS 目录
  soundy ingest t1 ./hls/t1 --dir`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		trackID, input := args[0], args[1]
		if trackID == "" {
			return errors.New("track id is required")
		}

		b := &backend{}
		defer b.Close()
		if err := b.openMediaStore(cmd.Context()); err != nil {
			return err
		}

		if ingestDir {
			n, err := audio.UploadDir(cmd.Context(), b.media, trackID, input)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %d files for %s\n", n, trackID)
			return nil
		}

		p := audio.NewFFmpegProcessor(cfg.FFmpegPath, cfg.AudioBitrate, cfg.HLSSegmentTime)
		duration, err := audio.Ingest(cmd.Context(), p, b.media, trackID, input)
		if err != nil {
			logger.Error("[CLI] 导入失败", logger.String("trackId", trackID), logger.ErrorField(err))
			return err
		}
		fmt.Printf("Ingested %s (%.1fs)\n", trackID, duration)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestDir, "dir", "d", false, "输入为已有的 HLS 目录")
	rootCmd.AddCommand(ingestCmd)
}
