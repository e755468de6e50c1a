// Package remote exposes the playback session and the login state over a local HTTP API, with a
// websocket stream of player snapshots.
package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"Soundy/core/player"
	"Soundy/logger"
	"Soundy/model"

	"github.com/gorilla/mux"
)

// Player is the playback surface driven by the API.
type Player interface {
	BindTrack(d model.TrackDescriptor) error
	TogglePlayPause()
	SeekFraction(f float64) float64
	SeekRelative(delta float64) float64
	SetVolume(v float64)
	ToggleMute()
	Teardown()
	Snapshot() player.Snapshot
	Subscribe() (<-chan player.Snapshot, func())
}

// Session is the login surface driven by the API.
type Session interface {
	Login(ctx context.Context, username, password string) (*model.AuthResponse, error)
	Logout(ctx context.Context) error
	Current(ctx context.Context) (*model.User, error)
	IsAuthenticated() bool
}

// TrackLookup fills in descriptors that only carry an id.
type TrackLookup interface {
	ByID(ctx context.Context, id string) (*model.Track, error)
}

type Handler struct {
	player  Player
	session Session
	tracks  TrackLookup
}

// NewHandler builds the API. tracks may be nil.
func NewHandler(p Player, s Session, tracks TrackLookup) *Handler {
	return &Handler{player: p, session: s, tracks: tracks}
}

func (h *Handler) Router() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/player", h.SnapshotHandler).Methods(http.MethodGet)
	router.HandleFunc("/player/track", h.BindHandler).Methods(http.MethodPut)
	router.HandleFunc("/player/track", h.UnbindHandler).Methods(http.MethodDelete)
	router.HandleFunc("/player/toggle", h.ToggleHandler).Methods(http.MethodPost)
	router.HandleFunc("/player/seek", h.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/player/volume", h.VolumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/player/mute", h.MuteHandler).Methods(http.MethodPost)
	router.HandleFunc("/player/ws", h.StreamHandler).Methods(http.MethodGet)

	router.HandleFunc("/session", h.StatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/session/login", h.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/session/logout", h.LogoutHandler).Methods(http.MethodPost)

	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("[Remote] 写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
