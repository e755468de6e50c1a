package output

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"Soundy/core/player"

	"go.uber.org/zap"
)

// Pipe is a Headless output that makes the audio audible through ffplay. Segment bytes are
// streamed into ffplay's stdin as playback enters them; a native source is handed to ffplay as
// an input URL instead, with the session's bearer token sent on every request ffplay makes.
type Pipe struct {
	*Headless

	ffplayPath string
	tokens     player.TokenSource

	mu     sync.Mutex
	proc   *exec.Cmd
	stdin  io.WriteCloser
	source string
}

// NewPipe locates ffplay and builds the output. ffplayPath may be a bare command name; tokens may
// be nil when the media server needs no auth.
func NewPipe(ffplayPath string, tokens player.TokenSource, opts ...Option) (*Pipe, error) {
	if ffplayPath == "" {
		ffplayPath = "ffplay"
	}
	path, err := exec.LookPath(ffplayPath)
	if err != nil {
		return nil, fmt.Errorf("ffplay not found: %w", err)
	}

	p := &Pipe{ffplayPath: path, tokens: tokens}
	opts = append(opts, WithWriter(stdinWriter{p}))
	p.Headless = NewHeadless(opts...)
	return p, nil
}

type stdinWriter struct {
	p *Pipe
}

func (w stdinWriter) Write(b []byte) (int, error) {
	return w.p.writeStream(b)
}

func (p *Pipe) writeStream(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin == nil {
		if err := p.startLocked(true, "-i", "pipe:0"); err != nil {
			return 0, err
		}
	}
	n, err := p.stdin.Write(b)
	if err != nil {
		p.stopLocked()
	}
	return n, err
}

// startLocked launches ffplay at the current volume. With stream set, its stdin is kept for
// segment data.
func (p *Pipe) startLocked(stream bool, input ...string) error {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error", "-volume", ffplayVolume(p.Volume())}
	args = append(args, input...)
	cmd := exec.Command(p.ffplayPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var stdin io.WriteCloser
	if stream {
		var err error
		if stdin, err = cmd.StdinPipe(); err != nil {
			return err
		}
	}

	p.log.Debug("[Output] 启动 ffplay", zap.String("cmd", p.ffplayPath+" "+redactHeaders(args)))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffplay start failed: %w", err)
	}
	p.proc = cmd
	p.stdin = stdin

	gen := p.generation()
	go p.wait(cmd, &stderr, stream, gen)
	return nil
}

func (p *Pipe) wait(cmd *exec.Cmd, stderr *bytes.Buffer, stream bool, gen uint64) {
	err := cmd.Wait()

	p.mu.Lock()
	current := p.proc == cmd
	if current {
		p.proc = nil
		p.stdin = nil
	}
	p.mu.Unlock()

	if !current {
		// stopped on purpose
		return
	}
	if err != nil {
		p.log.Warn("[Output] ffplay 异常退出", zap.Error(err), zap.String("stderr", stderr.String()))
	}
	if !stream {
		p.finish(gen)
	}
}

func (p *Pipe) stopLocked() {
	if p.proc == nil {
		return
	}
	cmd := p.proc
	p.proc = nil
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func (p *Pipe) Reset() uint64 {
	p.mu.Lock()
	p.stopLocked()
	p.source = ""
	p.mu.Unlock()
	return p.Headless.Reset()
}

// SetSource plays url through ffplay directly. Audio starts on Play.
func (p *Pipe) SetSource(url string) error {
	p.mu.Lock()
	p.stopLocked()
	p.source = url
	p.mu.Unlock()

	p.startNative()
	return nil
}

func (p *Pipe) Play() error {
	if err := p.Headless.Play(); err != nil {
		return err
	}
	if !p.isNative() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proc != nil {
		return nil
	}
	return p.startNativeLocked()
}

// startNativeLocked starts ffplay on the source at the current position. Segment URIs in a
// manifest resolve without the source's query, so the token also goes out as a header, which
// ffmpeg's HLS demuxer repeats on every segment request.
func (p *Pipe) startNativeLocked() error {
	pos := strconv.FormatFloat(p.Position(), 'f', 3, 64)
	input := []string{"-ss", pos}
	if p.tokens != nil {
		if token := p.tokens.AccessToken(); token != "" {
			input = append(input, "-headers", "Authorization: Bearer "+token+"\r\n")
		}
	}
	return p.startLocked(false, append(input, p.source)...)
}

// ffplayVolume maps 0..1 to ffplay's 0..100 scale.
func ffplayVolume(v float64) string {
	return strconv.Itoa(int(math.Round(math.Max(0, math.Min(v, 1)) * 100)))
}

func redactHeaders(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if i > 0 && args[i-1] == "-headers" {
			a = "<redacted>"
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

// Pause stops a native ffplay; the next Play restarts it at the current position.
func (p *Pipe) Pause() {
	p.Headless.Pause()
	if !p.isNative() {
		return
	}
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
}

func (p *Pipe) Seek(seconds float64) {
	p.Headless.Seek(seconds)
	if !p.isNative() || p.Paused() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	if err := p.startNativeLocked(); err != nil {
		p.log.Warn("[Output] ffplay 跳转失败", zap.Error(err))
	}
}

// SetVolume restarts a running ffplay at the new volume, which it only takes at launch. A native
// ffplay resumes at the current position; a streaming one gets the current segment again.
func (p *Pipe) SetVolume(v float64) {
	prev := p.Volume()
	p.Headless.SetVolume(v)
	if ffplayVolume(prev) == ffplayVolume(v) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proc == nil {
		return
	}
	stream := p.stdin != nil
	p.stopLocked()
	if stream {
		p.rewindCurrent()
		return
	}
	if err := p.startNativeLocked(); err != nil {
		p.log.Warn("[Output] ffplay 调整音量失败", zap.Error(err))
	}
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	return p.Headless.Close()
}
