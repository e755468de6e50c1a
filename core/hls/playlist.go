package hls

import (
	"errors"
	"time"

	"github.com/grafov/m3u8"
)

// timeline tolerance for segment boundaries
const epsilon = 1e-3

type segment struct {
	seq      int
	url      string
	start    float64
	duration float64
}

type mediaPlaylist struct {
	url      string
	segments []segment
	closed   bool
	target   float64
}

func newMediaPlaylist(playlistURL string, pl *m3u8.MediaPlaylist) (*mediaPlaylist, error) {
	m := &mediaPlaylist{
		url:    playlistURL,
		closed: pl.Closed,
		target: float64(pl.TargetDuration),
	}

	start := 0.0
	// Segments has spare capacity filled with nil entries
	for i, s := range pl.Segments {
		if s == nil {
			break
		}
		if s.Duration <= 0 {
			return nil, errors.New("segment without duration")
		}
		u, err := resolve(playlistURL, s.URI)
		if err != nil {
			return nil, err
		}
		m.segments = append(m.segments, segment{
			seq:      int(pl.SeqNo) + i,
			url:      u,
			start:    start,
			duration: s.Duration,
		})
		start += s.Duration
	}
	return m, nil
}

func (m *mediaPlaylist) total() float64 {
	if len(m.segments) == 0 {
		return 0
	}
	last := m.segments[len(m.segments)-1]
	return last.start + last.duration
}

// indexAt returns the segment that contains t, or -1 past the last segment.
func (m *mediaPlaylist) indexAt(t float64) int {
	for i, s := range m.segments {
		if s.start+s.duration > t+epsilon {
			return i
		}
	}
	return -1
}

// pollInterval is half the target duration, as players re-poll live playlists.
func (m *mediaPlaylist) pollInterval(fallback time.Duration) time.Duration {
	if m.target <= 0 {
		return fallback
	}
	return time.Duration(m.target / 2 * float64(time.Second))
}
