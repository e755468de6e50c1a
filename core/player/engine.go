package player

import (
	"fmt"
)

// ErrorKind classifies stream errors.
type ErrorKind int

const (
	ErrorNetwork ErrorKind = iota
	ErrorMedia
	ErrorOther
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNetwork:
		return "network"
	case ErrorMedia:
		return "media"
	default:
		return "other"
	}
}

// StreamError is reported by an engine. Fatal errors stop loading until the controller
// recovers or destroys the engine.
type StreamError struct {
	Kind    ErrorKind
	Fatal   bool
	Details string
	Err     error
}

func (e *StreamError) Error() string {
	severity := "non-fatal"
	if e.Fatal {
		severity = "fatal"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s error (%s): %v", severity, e.Kind, e.Details, e.Err)
	}
	return fmt.Sprintf("%s %s error (%s)", severity, e.Kind, e.Details)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// EngineEventType enumerates engine notifications.
type EngineEventType int

const (
	EngineManifestParsed EngineEventType = iota
	EngineBufferReady
	EngineLevelSwitched
	EngineError
)

// EngineEvent is emitted on Engine.Events.
type EngineEvent struct {
	Type   EngineEventType
	Levels int // ManifestParsed: number of variants
	Level  int // LevelSwitched: selected variant
	Err    *StreamError
}

// TokenSource yields the current access token. session.State satisfies it.
type TokenSource interface {
	AccessToken() string
}

// Engine is one adaptive streaming session bound to a MediaSink. It is exclusive to a single
// track and never reused.
type Engine interface {
	// LoadSource starts loading the manifest at url. It returns immediately.
	LoadSource(url string)
	// StartLoad restarts loading after a fatal network error.
	StartLoad()
	// RecoverMediaError drops buffered media ahead of the play position and reloads from there.
	RecoverMediaError()
	// Destroy stops every request and waits for them to finish. The events channel is closed
	// once Destroy returns.
	Destroy()
	Events() <-chan EngineEvent
}

// Streamer creates engines. Supported reports whether adaptive streaming is available at all;
// when it is not, the controller hands the manifest URL to the output directly.
type Streamer interface {
	Supported() bool
	Attach(sink MediaSink, tokens TokenSource) (Engine, error)
}
