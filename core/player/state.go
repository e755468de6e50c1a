package player

import (
	"fmt"

	"Soundy/model"
)

// State is the playback session state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateEnded
	StateErrorRecovering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLoading:
		return "LOADING"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateEnded:
		return "ENDED"
	case StateErrorRecovering:
		return "ERROR_RECOVERING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateErrorRecovering; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown player state %q", text)
}

// Transport is the play intent shown to listeners.
type Transport int

const (
	TransportPaused Transport = iota
	TransportPlaying
)

func (t Transport) String() string {
	if t == TransportPlaying {
		return "PLAYING"
	}
	return "PAUSED"
}

func (t Transport) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Transport) UnmarshalText(text []byte) error {
	switch string(text) {
	case "PLAYING":
		*t = TransportPlaying
	case "PAUSED":
		*t = TransportPaused
	default:
		return fmt.Errorf("unknown transport %q", text)
	}
	return nil
}

// Snapshot is what listeners see of the playback session. Volume reads 0 while muted.
type Snapshot struct {
	State     State                  `json:"state"`
	Track     *model.TrackDescriptor `json:"track,omitempty"`
	Transport Transport              `json:"transport"`
	Position  float64                `json:"position"`
	Duration  float64                `json:"duration"`
	Buffered  float64                `json:"buffered"` // percent of duration
	Volume    float64                `json:"volume"`
	Muted     bool                   `json:"muted"`
}

// TrackID returns the bound track id, or "".
func (s Snapshot) TrackID() string {
	if s.Track == nil {
		return ""
	}
	return s.Track.ID
}
