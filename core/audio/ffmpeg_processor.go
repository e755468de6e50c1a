// Package audio transcodes source audio into HLS with ffmpeg and loads the result into a media
// store, so the development backend has streams to serve.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"Soundy/logger"
	"Soundy/storage"

	"go.uber.org/zap"
)

// Processor turns an input file into an HLS directory.
type Processor interface {
	ProcessToHLS(ctx context.Context, inputFile, outputDir string) (float64, error)
	Probe(ctx context.Context, inputFile string) (*ProbeResult, error)
}

// ProbeResult is what ffprobe reports about the first audio stream.
type ProbeResult struct {
	Codec    string
	Duration float64
}

// FFmpegProcessor implements Processor with ffmpeg and ffprobe.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
	bitrate     string
	segmentTime int
	log         *zap.Logger
}

// NewFFmpegProcessor expects ffprobe next to ffmpeg, named the same way.
func NewFFmpegProcessor(ffmpegPath, bitrate string, segmentTime int) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "192k"
	}
	if segmentTime <= 0 {
		segmentTime = 10
	}
	dir, base := filepath.Split(ffmpegPath)
	return &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: dir + strings.Replace(base, "ffmpeg", "ffprobe", 1),
		bitrate:     bitrate,
		segmentTime: segmentTime,
		log:         logger.Named("audio"),
	}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *FFmpegProcessor) Probe(ctx context.Context, inputFile string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", inputFile, err)
	}
	if len(probeData.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found in %s", inputFile)
	}

	result := &ProbeResult{Codec: probeData.Streams[0].CodecName}
	if probeData.Format.Duration != "" {
		d, err := strconv.ParseFloat(probeData.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration %q for %s: %w", probeData.Format.Duration, inputFile, err)
		}
		result.Duration = d
	}
	return result, nil
}

// ProcessToHLS writes index.m3u8 and its segments into outputDir with relative segment URIs.
// It returns the duration of the input in seconds, or 0 when ffprobe could not tell.
func (p *FFmpegProcessor) ProcessToHLS(ctx context.Context, inputFile, outputDir string) (float64, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	var duration float64
	codec := ""
	probe, err := p.Probe(ctx, inputFile)
	if err != nil {
		p.log.Warn("[Audio] 无法探测音频信息，使用默认参数", zap.String("input", inputFile), zap.Error(err))
	} else {
		codec = probe.Codec
		duration = probe.Duration
	}

	args := []string{"-y", "-i", inputFile, "-vn", "-c:a", "aac"}
	if codec == "flac" {
		// 无损源使用更高码率
		args = append(args, "-b:a", "320k", "-af", "aformat=sample_fmts=fltp")
	} else {
		args = append(args, "-b:a", p.bitrate)
	}
	args = append(args,
		"-hls_time", strconv.Itoa(p.segmentTime),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outputDir, "seg_%03d.ts"),
		"-f", "hls",
		filepath.Join(outputDir, storage.ManifestName),
	)

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.log.Debug("[Audio] 执行 FFmpeg 命令", zap.String("cmd", p.ffmpegPath+" "+strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}

	p.log.Info("[Audio] 转码完成", zap.String("input", inputFile), zap.String("output", outputDir), zap.Float64("duration", duration))
	return duration, nil
}
