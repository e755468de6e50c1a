package player

import (
	"math"

	"go.uber.org/zap"
)

// pumpEngine applies the events of one engine until its channel closes. Events whose
// generation no longer matches are dropped.
func (c *Controller) pumpEngine(gen uint64, events <-chan EngineEvent) {
	for ev := range events {
		c.mu.Lock()
		if !c.closed && gen == c.engineGen {
			c.handleEngineEvent(ev)
		}
		c.mu.Unlock()
	}
}

func (c *Controller) pumpOutput() {
	events := c.output.Events()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.mu.Lock()
			if !c.closed {
				c.handleOutputEvent(ev)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) handleEngineEvent(ev EngineEvent) {
	switch ev.Type {
	case EngineManifestParsed:
		c.log.Debug("[Player] 清单解析完成", zap.String("trackId", c.trackID()), zap.Int("levels", ev.Levels))

	case EngineLevelSwitched:
		c.log.Debug("[Player] 切换码率", zap.String("trackId", c.trackID()), zap.Int("level", ev.Level))

	case EngineBufferReady:
		c.networkRecoveries, c.mediaRecoveries = 0, 0
		if c.state == StateLoading || c.state == StateErrorRecovering {
			c.becomeReady()
			c.broadcast()
		}

	case EngineError:
		if ev.Err == nil {
			return
		}
		c.handleStreamError(ev.Err)
		c.broadcast()
	}
}

// becomeReady leaves LOADING or ERROR_RECOVERING according to the play intent.
func (c *Controller) becomeReady() {
	if c.transport == TransportPlaying {
		c.play()
		return
	}
	c.output.Pause()
	c.state = StatePaused
}

func (c *Controller) handleStreamError(err *StreamError) {
	fields := []zap.Field{
		zap.String("trackId", c.trackID()),
		zap.String("kind", err.Kind.String()),
		zap.String("details", err.Details),
		zap.Error(err.Err),
	}

	if !err.Fatal {
		c.log.Warn("[Player] 非致命流错误", fields...)
		return
	}

	switch err.Kind {
	case ErrorNetwork:
		if c.networkRecoveries >= c.opts.MaxNetworkRecoveries {
			c.log.Error("[Player] 网络错误恢复次数用尽，停止播放", fields...)
			c.resetToIdle()
			return
		}
		c.networkRecoveries++
		c.log.Warn("[Player] 致命网络错误，重新加载", append(fields, zap.Int("attempt", c.networkRecoveries))...)
		c.state = StateErrorRecovering
		c.engine.StartLoad()

	case ErrorMedia:
		if c.mediaRecoveries >= c.opts.MaxMediaRecoveries {
			c.log.Error("[Player] 媒体错误恢复次数用尽，停止播放", fields...)
			c.resetToIdle()
			return
		}
		c.mediaRecoveries++
		c.log.Warn("[Player] 致命媒体错误，尝试恢复", append(fields, zap.Int("attempt", c.mediaRecoveries))...)
		prev := c.state
		c.state = StateErrorRecovering
		c.engine.RecoverMediaError()
		c.state = prev

	default:
		c.log.Error("[Player] 不可恢复的流错误，卸载曲目", fields...)
		c.resetToIdle()
	}
}

func (c *Controller) handleOutputEvent(ev OutputEvent) {
	if ev.Type == OutputVolumeChange {
		if c.ownVolumeEcho(ev.Value) {
			return
		}
		// the slider follows the output only while unmuted
		if !c.muted {
			c.volume = clamp(ev.Value, 0, 1)
			c.broadcast()
		}
		return
	}
	if ev.Gen != c.mediaGen || c.state == StateIdle {
		return
	}

	switch ev.Type {
	case OutputTimeUpdate:
		c.position = math.Max(0, ev.Value)
	case OutputDurationChange:
		c.duration = ev.Value
		c.updateBuffered(-1)
	case OutputProgress:
		c.updateBuffered(ev.Value)
	case OutputReady:
		// native playback has no engine to report readiness
		if c.engine == nil && c.state == StateLoading {
			c.becomeReady()
		}
	case OutputEnded:
		if c.state == StatePlaying || c.state == StatePaused {
			c.state = StateEnded
			c.transport = TransportPaused
			c.position = c.duration
		}
	}
	c.broadcast()
}

// bufferedEnd is kept so the percentage can be recomputed when the duration changes.
func (c *Controller) updateBuffered(end float64) {
	if end >= 0 {
		c.bufferedEnd = end
	}
	if c.duration <= 0 {
		c.buffered = 0
		return
	}
	c.buffered = clamp(c.bufferedEnd/c.duration*100, 0, 100)
}
