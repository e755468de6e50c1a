// Package output provides the process-wide audio output: a headless playback clock that
// consumes segments from the streaming engine, optionally piping the audio into ffplay.
package output

import (
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"Soundy/core/player"
	"Soundy/logger"

	"go.uber.org/zap"
)

const (
	// segments further behind the play position are released
	backBuffer = 30.0
	// timeline tolerance for contiguity
	epsilon = 1e-3
)

// ErrEmptySegment is returned when a segment carries no media.
var ErrEmptySegment = errors.New("segment has no media")

// Option configures a Headless output.
type Option func(*Headless)

// WithTick sets the clock resolution. Zero disables the clock goroutine; Advance drives it.
func WithTick(d time.Duration) Option {
	return func(h *Headless) {
		h.tick = d
	}
}

// WithWriter receives the bytes of every segment as playback enters it.
func WithWriter(w io.Writer) Option {
	return func(h *Headless) {
		h.writer = w
	}
}

// Headless plays media on a virtual clock. It is created once and lives as long as the process.
type Headless struct {
	mu sync.Mutex

	gen      uint64
	segments []player.Segment
	position float64
	duration float64
	eos      bool
	ended    bool
	hasMedia bool
	native   bool
	paused   bool
	volume   float64
	lastSeq  int

	tick   time.Duration
	writer io.Writer
	events *eventQueue
	log    *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHeadless(opts ...Option) *Headless {
	h := &Headless{
		paused:  true,
		volume:  1,
		lastSeq: -1,
		tick:    250 * time.Millisecond,
		events:  newEventQueue(),
		log:     logger.Named("output"),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.tick > 0 {
		h.wg.Add(1)
		go h.clock()
	}
	return h
}

func (h *Headless) clock() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.Advance(now.Sub(last))
			last = now
		}
	}
}

// Close stops the clock and event delivery.
func (h *Headless) Close() error {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.wg.Wait()
		h.events.close()
	})
	return nil
}

func (h *Headless) Events() <-chan player.OutputEvent {
	return h.events.out
}

func (h *Headless) emitLocked(typ player.OutputEventType, value float64) {
	h.events.push(player.OutputEvent{Type: typ, Gen: h.gen, Value: value})
}

// Advance moves the clock by d. Playback stalls at the end of the buffered range.
func (h *Headless) Advance(d time.Duration) {
	var pending [][]byte

	h.mu.Lock()
	if h.paused || d <= 0 {
		h.mu.Unlock()
		return
	}

	target := h.position + d.Seconds()
	if h.native {
		if h.duration > 0 {
			target = math.Min(target, h.duration)
		}
	} else {
		_, end := h.bufferedLocked()
		target = math.Min(target, end)
	}

	if target > h.position {
		h.position = target
		pending = h.enterSegmentsLocked()
		h.emitLocked(player.OutputTimeUpdate, h.position)
		h.releaseLocked()
	}

	if h.reachedEndLocked() {
		h.paused = true
		h.ended = true
		h.emitLocked(player.OutputEnded, h.position)
	}
	w := h.writer
	h.mu.Unlock()

	h.write(w, pending)
}

// enterSegmentsLocked returns the data of segments playback has entered since the last call.
func (h *Headless) enterSegmentsLocked() [][]byte {
	var pending [][]byte
	for _, seg := range h.segments {
		if seg.Seq > h.lastSeq && seg.Start <= h.position+epsilon {
			pending = append(pending, seg.Data)
			h.lastSeq = seg.Seq
		}
	}
	return pending
}

func (h *Headless) write(w io.Writer, chunks [][]byte) {
	if w == nil {
		return
	}
	for _, chunk := range chunks {
		if _, err := w.Write(chunk); err != nil {
			h.log.Warn("[Output] 写入音频数据失败", zap.Error(err))
			return
		}
	}
}

func (h *Headless) reachedEndLocked() bool {
	if h.ended {
		return false
	}
	if h.native {
		return h.duration > 0 && h.position >= h.duration-epsilon
	}
	if !h.eos {
		return false
	}
	_, end := h.bufferedLocked()
	return h.position >= end-epsilon
}

// releaseLocked drops segments far behind the play position.
func (h *Headless) releaseLocked() {
	i := 0
	for i < len(h.segments) && h.segments[i].Start+h.segments[i].Duration < h.position-backBuffer {
		i++
	}
	h.segments = h.segments[i:]
}

func (h *Headless) AppendSegment(seg player.Segment) error {
	if len(seg.Data) == 0 || seg.Duration <= 0 {
		return ErrEmptySegment
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.segments); n > 0 {
		last := h.segments[n-1]
		if math.Abs(seg.Start-(last.Start+last.Duration)) > epsilon {
			// not contiguous: start a new range
			h.segments = h.segments[:0]
		}
	}
	h.segments = append(h.segments, seg)
	h.hasMedia = true
	h.ended = false

	_, end := h.bufferedLocked()
	h.emitLocked(player.OutputProgress, end)
	return nil
}

func (h *Headless) SetDuration(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seconds == h.duration {
		return
	}
	h.duration = seconds
	h.emitLocked(player.OutputDurationChange, seconds)
}

func (h *Headless) EndOfStream() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eos = true
}

func (h *Headless) FlushFrom(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.segments[:0]
	for _, seg := range h.segments {
		if seg.Start+seg.Duration <= seconds+epsilon {
			kept = append(kept, seg)
		}
	}
	h.segments = kept
	h.eos = false
	h.lastSeq = -1
	for _, seg := range h.segments {
		h.lastSeq = seg.Seq
	}
}

func (h *Headless) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

func (h *Headless) Buffered() (float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bufferedLocked()
}

// bufferedLocked returns the buffered range containing the position, or an empty range at it.
func (h *Headless) bufferedLocked() (float64, float64) {
	if len(h.segments) == 0 {
		return h.position, h.position
	}
	start := h.segments[0].Start
	last := h.segments[len(h.segments)-1]
	end := last.Start + last.Duration
	if h.position < start-epsilon || h.position > end+epsilon {
		return h.position, h.position
	}
	return start, end
}

// Reset drops all media and starts a new media generation.
func (h *Headless) Reset() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.gen++
	h.segments = nil
	h.position = 0
	h.duration = 0
	h.eos = false
	h.ended = false
	h.hasMedia = false
	h.native = false
	h.lastSeq = -1
	return h.gen
}

// SetSource is not available without an external player.
func (h *Headless) SetSource(string) error {
	return player.ErrNativeUnsupported
}

// startNative switches the clock to a source played elsewhere and reports it ready.
func (h *Headless) startNative() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.native = true
	h.hasMedia = true
	h.emitLocked(player.OutputReady, 0)
}

// finish marks the end of media for generation gen.
func (h *Headless) finish(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen || h.ended {
		return
	}
	h.paused = true
	h.ended = true
	h.emitLocked(player.OutputEnded, h.position)
}

func (h *Headless) isNative() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.native
}

func (h *Headless) generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

func (h *Headless) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasMedia {
		return player.ErrPlayRejected
	}
	h.paused = false
	h.ended = false
	return nil
}

func (h *Headless) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
}

func (h *Headless) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Seek moves the position. Seeking outside the buffered range drops the buffer so the engine
// reloads from the new position.
func (h *Headless) Seek(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	h.position = seconds
	h.ended = false

	start, end := h.bufferedLocked()
	if start == end {
		h.segments = nil
		h.eos = false
	}
	h.lastSeq = -1
	for _, seg := range h.segments {
		if seg.Start+seg.Duration <= seconds+epsilon {
			h.lastSeq = seg.Seq
		}
	}
	h.emitLocked(player.OutputTimeUpdate, h.position)
}

// rewindCurrent makes the segment under the position count as not yet written.
func (h *Headless) rewindCurrent() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, seg := range h.segments {
		if seg.Seq <= h.lastSeq && seg.Start <= h.position+epsilon && h.position < seg.Start+seg.Duration-epsilon {
			h.lastSeq = seg.Seq - 1
			return
		}
	}
}

func (h *Headless) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
	h.emitLocked(player.OutputVolumeChange, v)
}

func (h *Headless) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}
