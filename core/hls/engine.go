// Package hls is the adaptive streaming engine behind the player. It loads an HLS manifest,
// picks a variant by measured throughput and feeds media segments into the shared output.
package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"Soundy/core/player"
	"Soundy/logger"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	ManifestTimeout time.Duration
	RequestTimeout  time.Duration
	SegmentRetries  int
	RetryDelay      time.Duration
	MaxBuffer       float64 // seconds ahead of the play position
	PollInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.ManifestTimeout <= 0 {
		c.ManifestTimeout = 15 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.SegmentRetries < 0 {
		c.SegmentRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = 30
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	return c
}

// Streamer creates engines sharing one HTTP client.
type Streamer struct {
	cfg    Config
	client *http.Client
}

func NewStreamer(cfg Config, client *http.Client) *Streamer {
	if client == nil {
		client = &http.Client{}
	}
	return &Streamer{cfg: cfg.withDefaults(), client: client}
}

// Supported is always true: segments are fetched and handed to the sink directly.
func (s *Streamer) Supported() bool {
	return true
}

func (s *Streamer) Attach(sink player.MediaSink, tokens player.TokenSource) (player.Engine, error) {
	if sink == nil {
		return nil, errors.New("hls: nil media sink")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:    s.cfg,
		client: s.client,
		sink:   sink,
		tokens: tokens,
		log:    logger.Named("hls"),
		events: make(chan player.EngineEvent, 16),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Engine streams one manifest. Loading runs in a single goroutine at a time; StartLoad and
// RecoverMediaError stop the current run before starting the next.
type Engine struct {
	cfg    Config
	client *http.Client
	sink   player.MediaSink
	tokens player.TokenSource
	log    *zap.Logger
	events chan player.EngineEvent

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	manifestURL string
	runCancel   context.CancelFunc
	runDone     chan struct{}
	destroyed   bool

	// owned by the active run
	variants  []variant
	level     int
	media     *mediaPlaylist
	bandwidth float64
}

type variant struct {
	url       string
	bandwidth float64
}

func (e *Engine) Events() <-chan player.EngineEvent {
	return e.events
}

func (e *Engine) LoadSource(rawURL string) {
	e.mu.Lock()
	e.manifestURL = rawURL
	e.mu.Unlock()
	e.restart(nil)
}

func (e *Engine) StartLoad() {
	e.restart(nil)
}

func (e *Engine) RecoverMediaError() {
	e.restart(func() {
		e.sink.FlushFrom(e.sink.Position())
	})
}

// Destroy cancels every request, waits for the loader and closes the events channel.
func (e *Engine) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.cancel()
	done := e.runDone
	e.mu.Unlock()

	if done != nil {
		<-done
	}
	close(e.events)
	e.log.Debug("[HLS] 引擎已销毁")
}

// restart stops the current run, applies between (if any) while nothing is loading, and starts
// a new run.
func (e *Engine) restart(between func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || e.manifestURL == "" {
		return
	}

	if e.runCancel != nil {
		e.runCancel()
		<-e.runDone
	}
	if between != nil {
		between()
	}

	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	e.runCancel, e.runDone = cancel, done
	go e.run(ctx, done, e.manifestURL)
}

func (e *Engine) run(ctx context.Context, done chan struct{}, manifestURL string) {
	defer close(done)

	if e.media == nil {
		if err := e.loadManifest(ctx, manifestURL); err != nil {
			e.report(ctx, err)
			return
		}
	}
	e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) {
	ready := false
	eos := false
	markReady := func() {
		if !ready {
			ready = true
			e.emit(ctx, player.EngineEvent{Type: player.EngineBufferReady})
		}
	}

	for ctx.Err() == nil {
		pos := e.sink.Position()
		start, end := e.sink.Buffered()
		edge := end
		if pos < start || pos > end {
			edge = pos
		}

		if edge-pos >= e.cfg.MaxBuffer {
			if !sleep(ctx, e.cfg.PollInterval) {
				return
			}
			continue
		}

		idx := e.media.indexAt(edge)
		if idx < 0 {
			if e.media.closed {
				if !eos {
					eos = true
					e.sink.EndOfStream()
					markReady()
				}
				if !sleep(ctx, e.cfg.PollInterval) {
					return
				}
				continue
			}
			// EVENT playlist still growing
			if !sleep(ctx, e.media.pollInterval(e.cfg.PollInterval)) {
				return
			}
			if err := e.reloadMedia(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				e.report(ctx, err)
				return
			}
			continue
		}
		eos = false

		seg := e.media.segments[idx]
		data, err := e.fetchSegment(ctx, seg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.report(ctx, err)
			return
		}

		err = e.sink.AppendSegment(player.Segment{
			Seq:      seg.seq,
			Start:    seg.start,
			Duration: seg.duration,
			Data:     data,
		})
		if err != nil {
			e.report(ctx, &player.StreamError{Kind: player.ErrorMedia, Fatal: true, Details: "bufferAppendError", Err: err})
			return
		}
		markReady()
		e.adapt(ctx)
	}
}

func (e *Engine) loadManifest(ctx context.Context, manifestURL string) error {
	body, err := e.fetch(ctx, manifestURL, e.cfg.ManifestTimeout)
	if err != nil {
		return &player.StreamError{Kind: player.ErrorNetwork, Fatal: true, Details: "manifestLoadError", Err: err}
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "manifestParsingError", Err: err}
	}

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		variants := make([]variant, 0, len(master.Variants))
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			u, err := resolve(manifestURL, v.URI)
			if err != nil {
				return &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "manifestParsingError", Err: err}
			}
			variants = append(variants, variant{url: u, bandwidth: float64(v.Bandwidth)})
		}
		if len(variants) == 0 {
			return &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "manifestIncompatibleCodecsError", Err: errors.New("master playlist has no variants")}
		}
		sort.SliceStable(variants, func(i, j int) bool { return variants[i].bandwidth < variants[j].bandwidth })
		e.variants = variants
		e.level = 0

		media, err := e.loadMedia(ctx, variants[0].url)
		if err != nil {
			return err
		}
		e.media = media

	case m3u8.MEDIA:
		media, err := newMediaPlaylist(manifestURL, playlist.(*m3u8.MediaPlaylist))
		if err != nil {
			return &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "manifestParsingError", Err: err}
		}
		e.variants = []variant{{url: manifestURL}}
		e.level = 0
		e.media = media

	default:
		return &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "manifestParsingError", Err: fmt.Errorf("unknown playlist type %v", listType)}
	}

	e.log.Debug("[HLS] 清单加载完成",
		zap.Int("levels", len(e.variants)),
		zap.Int("segments", len(e.media.segments)),
		zap.Bool("closed", e.media.closed))
	e.emit(ctx, player.EngineEvent{Type: player.EngineManifestParsed, Levels: len(e.variants)})
	e.sink.SetDuration(e.media.total())
	return nil
}

func (e *Engine) loadMedia(ctx context.Context, mediaURL string) (*mediaPlaylist, error) {
	body, err := e.fetch(ctx, mediaURL, e.cfg.ManifestTimeout)
	if err != nil {
		return nil, &player.StreamError{Kind: player.ErrorNetwork, Fatal: true, Details: "levelLoadError", Err: err}
	}
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "levelParsingError", Err: err}
	}
	if listType != m3u8.MEDIA {
		return nil, &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "levelParsingError", Err: errors.New("variant is not a media playlist")}
	}
	media, err := newMediaPlaylist(mediaURL, playlist.(*m3u8.MediaPlaylist))
	if err != nil {
		return nil, &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "levelParsingError", Err: err}
	}
	return media, nil
}

// reloadMedia re-polls the current media playlist and updates the duration when it grows.
func (e *Engine) reloadMedia(ctx context.Context) error {
	media, err := e.loadMedia(ctx, e.media.url)
	if err != nil {
		return err
	}
	grew := len(media.segments) != len(e.media.segments) || media.closed != e.media.closed
	e.media = media
	if grew {
		e.log.Debug("[HLS] 播放列表更新", zap.Int("segments", len(media.segments)), zap.Bool("closed", media.closed))
		e.sink.SetDuration(media.total())
	}
	return nil
}

// fetchSegment retries a segment; every failed attempt but the last is reported as non-fatal.
func (e *Engine) fetchSegment(ctx context.Context, seg segment) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.SegmentRetries; attempt++ {
		started := time.Now()
		data, err := e.fetch(ctx, seg.url, e.cfg.RequestTimeout)
		if err == nil {
			e.measure(len(data), time.Since(started))
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt < e.cfg.SegmentRetries {
			e.emit(ctx, player.EngineEvent{Type: player.EngineError, Err: &player.StreamError{
				Kind:    player.ErrorNetwork,
				Details: fmt.Sprintf("fragLoadError seq=%d attempt=%d", seg.seq, attempt+1),
				Err:     err,
			}})
			if !sleep(ctx, e.cfg.RetryDelay*time.Duration(attempt+1)) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, &player.StreamError{Kind: player.ErrorNetwork, Fatal: true, Details: fmt.Sprintf("fragLoadError seq=%d", seg.seq), Err: lastErr}
}

// fetch GETs rawURL. Requests whose URL carries no token send the bearer header instead.
func (e *Engine) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if !hasToken(rawURL) && e.tokens != nil {
		if token := e.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// StatusError is a non-2xx answer to a manifest or segment request.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

func (e *Engine) report(ctx context.Context, err error) {
	var streamErr *player.StreamError
	if !errors.As(err, &streamErr) {
		streamErr = &player.StreamError{Kind: player.ErrorOther, Fatal: true, Details: "internalException", Err: err}
	}
	e.log.Warn("[HLS] 加载中止", zap.Error(streamErr))
	e.emit(ctx, player.EngineEvent{Type: player.EngineError, Err: streamErr})
}

// emit never blocks past the run's cancellation.
func (e *Engine) emit(ctx context.Context, ev player.EngineEvent) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

func hasToken(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get("token") != ""
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
