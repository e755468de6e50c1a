package hls

import (
	"context"
	"time"

	"Soundy/core/player"

	"go.uber.org/zap"
)

const (
	// weight of the newest throughput sample
	ewmaAlpha = 0.3
	// only take a variant using at most this share of the estimate
	bandwidthSafety = 0.8
)

func (e *Engine) measure(bytes int, elapsed time.Duration) {
	if elapsed <= 0 || bytes == 0 {
		return
	}
	sample := float64(bytes) * 8 / elapsed.Seconds()
	if e.bandwidth == 0 {
		e.bandwidth = sample
		return
	}
	e.bandwidth = ewmaAlpha*sample + (1-ewmaAlpha)*e.bandwidth
}

// chooseLevel returns the highest variant whose bandwidth fits the estimate, or the lowest one.
func (e *Engine) chooseLevel() int {
	best := 0
	for i, v := range e.variants {
		if v.bandwidth <= e.bandwidth*bandwidthSafety {
			best = i
		}
	}
	return best
}

// adapt switches variant when the throughput estimate moved. Variants share one timeline, so
// loading continues at the same position.
func (e *Engine) adapt(ctx context.Context) {
	if len(e.variants) < 2 {
		return
	}
	next := e.chooseLevel()
	if next == e.level {
		return
	}

	media, err := e.loadMedia(ctx, e.variants[next].url)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("[HLS] 切换码率失败，保持当前码率", zap.Int("level", next), zap.Error(err))
		}
		return
	}

	e.log.Info("[HLS] 切换码率",
		zap.Int("from", e.level),
		zap.Int("to", next),
		zap.Float64("estimate", e.bandwidth))
	e.level = next
	e.media = media
	e.emit(ctx, player.EngineEvent{Type: player.EngineLevelSwitched, Level: next})
}
