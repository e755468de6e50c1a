package player

import "errors"

// ErrPlayRejected is returned by Output.Play when playback cannot start.
var ErrPlayRejected = errors.New("play rejected")

// ErrNativeUnsupported is returned by Output.SetSource when the output cannot load a manifest
// on its own.
var ErrNativeUnsupported = errors.New("native streaming not supported")

// Segment is a chunk of encoded media placed on the output timeline.
type Segment struct {
	Seq      int
	Start    float64
	Duration float64
	Data     []byte
}

// MediaSink is the part of the output an engine feeds.
type MediaSink interface {
	AppendSegment(seg Segment) error
	SetDuration(seconds float64)
	EndOfStream()
	// FlushFrom drops buffered media from seconds onward.
	FlushFrom(seconds float64)
	Position() float64
	// Buffered returns the contiguous buffered range around the play position.
	Buffered() (start, end float64)
}

// Output is the audio output shared by every bound track. It is acquired once and never
// released while the process runs; engines come and go around it.
type Output interface {
	MediaSink

	// Reset drops all media and returns the new media generation. Events emitted before the
	// reset carry an older generation.
	Reset() uint64
	// SetSource loads a manifest URL without an engine.
	SetSource(url string) error
	Play() error
	Pause()
	Paused() bool
	Seek(seconds float64)
	SetVolume(v float64)
	Events() <-chan OutputEvent
}

// OutputEventType enumerates output notifications.
type OutputEventType int

const (
	OutputTimeUpdate OutputEventType = iota
	OutputDurationChange
	OutputProgress
	OutputReady
	OutputEnded
	OutputVolumeChange
)

func (t OutputEventType) String() string {
	switch t {
	case OutputTimeUpdate:
		return "timeupdate"
	case OutputDurationChange:
		return "durationchange"
	case OutputProgress:
		return "progress"
	case OutputReady:
		return "ready"
	case OutputEnded:
		return "ended"
	case OutputVolumeChange:
		return "volumechange"
	default:
		return "unknown"
	}
}

// OutputEvent is emitted on Output.Events. Gen is the media generation current at emission.
type OutputEvent struct {
	Type  OutputEventType
	Gen   uint64
	Value float64 // position, duration, buffered end or volume
}
