// Package player owns the single playback session of the process: one shared audio output and
// at most one streaming engine bound to it at a time.
package player

import (
	"errors"
	"math"
	"net/url"
	"strings"
	"sync"

	"Soundy/logger"
	"Soundy/model"

	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("player closed")

// Options tunes recovery budgets.
type Options struct {
	MaxNetworkRecoveries int
	MaxMediaRecoveries   int
}

func (o Options) withDefaults() Options {
	if o.MaxNetworkRecoveries <= 0 {
		o.MaxNetworkRecoveries = 3
	}
	if o.MaxMediaRecoveries <= 0 {
		o.MaxMediaRecoveries = 2
	}
	return o
}

// Controller serialises every operation and every engine/output event under one mutex.
type Controller struct {
	mu sync.Mutex

	output    Output
	streamer  Streamer
	tokens    TokenSource
	mediaBase string
	opts      Options
	log       *zap.Logger

	state       State
	track       *model.TrackDescriptor
	transport   Transport
	position    float64
	duration    float64
	buffered    float64
	bufferedEnd float64
	volume      float64
	muted       bool
	// volumes written to the output whose change events have not come back yet
	sentVolumes []float64

	engine    Engine
	engineGen uint64
	mediaGen  uint64

	networkRecoveries int
	mediaRecoveries   int

	subs    map[int]chan Snapshot
	nextSub int

	closed bool
	done   chan struct{}
}

// NewController binds a controller to output for the rest of the process. streamer may be nil,
// in which case manifests are handed to the output directly.
func NewController(output Output, streamer Streamer, tokens TokenSource, mediaBase string, opts Options) *Controller {
	c := &Controller{
		output:    output,
		streamer:  streamer,
		tokens:    tokens,
		mediaBase: strings.TrimRight(mediaBase, "/"),
		opts:      opts.withDefaults(),
		log:       logger.Named("player"),
		volume:    1,
		subs:      make(map[int]chan Snapshot),
		done:      make(chan struct{}),
	}
	c.mediaGen = output.Reset()
	c.applyVolume(c.volume)

	go c.pumpOutput()
	return c
}

// ManifestURL builds the authenticated manifest address of a track.
func ManifestURL(mediaBase, trackID, token string) string {
	u := strings.TrimRight(mediaBase, "/") + "/track/" + url.PathEscape(trackID) + "/index.m3u8"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// BindTrack makes d the current track. Binding the track that is already bound is a no-op.
func (c *Controller) BindTrack(d model.TrackDescriptor) error {
	if d.ID == "" {
		return errors.New("track id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.track != nil && c.track.ID == d.ID {
		return nil
	}

	// the old engine must be gone before the new one exists
	c.destroyEngine()
	c.mediaGen = c.output.Reset()

	track := d
	c.track = &track
	c.position, c.duration, c.buffered, c.bufferedEnd = 0, 0, 0, 0
	c.state = StateLoading
	c.transport = TransportPlaying
	c.networkRecoveries, c.mediaRecoveries = 0, 0

	token := ""
	if c.tokens != nil {
		token = c.tokens.AccessToken()
	}
	manifest := ManifestURL(c.mediaBase, d.ID, token)

	c.log.Info("[Player] 绑定曲目", zap.String("trackId", d.ID), zap.String("title", d.Title))

	if c.streamer != nil && c.streamer.Supported() {
		engine, err := c.streamer.Attach(c.output, c.tokens)
		if err != nil {
			c.log.Error("[Player] 创建流引擎失败", zap.String("trackId", d.ID), zap.Error(err))
			c.resetToIdle()
			c.broadcast()
			return nil
		}
		c.engineGen++
		c.engine = engine
		go c.pumpEngine(c.engineGen, engine.Events())
		engine.LoadSource(manifest)
	} else if err := c.output.SetSource(manifest); err != nil {
		c.log.Error("[Player] 输出无法直接加载清单", zap.String("trackId", d.ID), zap.Error(err))
		c.resetToIdle()
	}

	c.broadcast()
	return nil
}

// TogglePlayPause inverts the transport. A rejected play leaves the session paused.
func (c *Controller) TogglePlayPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch c.state {
	case StateIdle:
		return
	case StateLoading, StateErrorRecovering:
		// only the intent changes; ready decides whether to play
		if c.transport == TransportPlaying {
			c.transport = TransportPaused
			c.output.Pause()
		} else {
			c.transport = TransportPlaying
		}
	case StateEnded:
		c.output.Seek(0)
		c.transport = TransportPlaying
		c.play()
	case StatePlaying:
		c.output.Pause()
		c.transport = TransportPaused
		c.state = StatePaused
	case StatePaused:
		c.transport = TransportPlaying
		c.play()
	}
	c.broadcast()
}

// play starts the output for the current transport intent and settles the state.
func (c *Controller) play() {
	if err := c.output.Play(); err != nil {
		c.log.Warn("[Player] 播放被拒绝", zap.String("trackId", c.trackID()), zap.Error(err))
		c.transport = TransportPaused
		c.state = StatePaused
		return
	}
	c.state = StatePlaying
}

// SeekFraction seeks to f of the duration, clamped to [0, duration]. It returns the target.
func (c *Controller) SeekFraction(f float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seek(f * c.duration)
}

// SeekRelative moves the position by delta seconds, clamped to [0, duration].
func (c *Controller) SeekRelative(delta float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seek(c.position + delta)
}

func (c *Controller) seek(target float64) float64 {
	if c.closed || c.state == StateIdle {
		return 0
	}
	if math.IsNaN(target) {
		target = 0
	}
	target = clamp(target, 0, c.duration)

	// position follows the output's time updates
	c.output.Seek(target)
	if c.state == StateEnded && target < c.duration {
		c.state = StatePaused
		c.broadcast()
	}
	return target
}

// SetVolume applies v (clamped to [0,1]) and unmutes when v > 0.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.volume = clamp(v, 0, 1)
	if c.volume > 0 {
		c.muted = false
	}
	if c.muted {
		c.applyVolume(0)
	} else {
		c.applyVolume(c.volume)
	}
	c.broadcast()
}

const maxSentVolumes = 16

// applyVolume writes v to the output and remembers it so the echoed change event is not taken
// for an outside change.
func (c *Controller) applyVolume(v float64) {
	c.sentVolumes = append(c.sentVolumes, v)
	if n := len(c.sentVolumes); n > maxSentVolumes {
		c.sentVolumes = c.sentVolumes[n-maxSentVolumes:]
	}
	c.output.SetVolume(v)
}

// ownVolumeEcho reports whether v answers one of our writes. Outputs echo in order, so the
// match and everything written before it are settled.
func (c *Controller) ownVolumeEcho(v float64) bool {
	for i, sent := range c.sentVolumes {
		if sent == v {
			c.sentVolumes = c.sentVolumes[i+1:]
			return true
		}
	}
	return false
}

// ToggleMute zeroes the output and restores the captured volume on unmute.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.muted = !c.muted
	if c.muted {
		c.applyVolume(0)
	} else {
		c.applyVolume(c.volume)
	}
	c.broadcast()
}

// Reconcile aligns the output with the transport the session believes in.
func (c *Controller) Reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.reconcile()
	c.broadcast()
}

func (c *Controller) reconcile() {
	switch c.state {
	case StatePlaying:
		if c.output.Paused() {
			c.log.Debug("[Player] 输出已暂停，恢复播放", zap.String("trackId", c.trackID()))
			c.play()
		}
	case StatePaused:
		if !c.output.Paused() {
			c.log.Debug("[Player] 输出仍在播放，暂停", zap.String("trackId", c.trackID()))
			c.output.Pause()
		}
	}
}

// Subscribe registers a listener. Every new listener triggers a reconciliation, and the current
// snapshot is delivered right away. Slow listeners only see the latest snapshot.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	c.reconcile()
	c.broadcast()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Teardown unbinds the track and returns to IDLE. Used on logout.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.state != StateIdle {
		c.log.Info("[Player] 会话结束，卸载曲目", zap.String("trackId", c.trackID()))
	}
	c.resetToIdle()
	c.broadcast()
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Close tears the session down and stops event processing. The output itself is left to its
// owner.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetToIdle()
	c.closed = true
	close(c.done)
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

func (c *Controller) resetToIdle() {
	c.destroyEngine()
	c.output.Pause()
	c.mediaGen = c.output.Reset()
	c.track = nil
	c.state = StateIdle
	c.transport = TransportPaused
	c.position, c.duration, c.buffered, c.bufferedEnd = 0, 0, 0, 0
	c.networkRecoveries, c.mediaRecoveries = 0, 0
}

func (c *Controller) destroyEngine() {
	if c.engine == nil {
		return
	}
	c.engine.Destroy()
	c.engine = nil
	// late events from the old engine no longer match
	c.engineGen++
}

func (c *Controller) trackID() string {
	if c.track == nil {
		return ""
	}
	return c.track.ID
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		State:     c.state,
		Transport: c.transport,
		Position:  c.position,
		Duration:  c.duration,
		Buffered:  c.buffered,
		Volume:    c.volume,
		Muted:     c.muted,
	}
	if c.muted {
		s.Volume = 0
	}
	if c.track != nil {
		track := *c.track
		s.Track = &track
	}
	return s
}

// broadcast delivers the latest snapshot to every listener, replacing an unread one.
func (c *Controller) broadcast() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshot()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}
