package remote

import (
	"encoding/json"
	"net/http"

	"Soundy/logger"
	"Soundy/model"
)

func (h *Handler) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

// BindHandler binds the posted track. A bare id is completed from the track API when possible.
func (h *Handler) BindHandler(w http.ResponseWriter, r *http.Request) {
	var d model.TrackDescriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if d.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if d.Title == "" && h.tracks != nil {
		track, err := h.tracks.ByID(r.Context(), d.ID)
		if err != nil {
			logger.Warn("[Remote] 获取曲目信息失败，仅按ID播放", logger.String("trackId", d.ID), logger.ErrorField(err))
		} else {
			d = track.Descriptor()
		}
	}

	if err := h.player.BindTrack(d); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

func (h *Handler) UnbindHandler(w http.ResponseWriter, r *http.Request) {
	h.player.Teardown()
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

func (h *Handler) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	h.player.TogglePlayPause()
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

type seekRequest struct {
	Fraction *float64 `json:"fraction,omitempty"`
	Delta    *float64 `json:"delta,omitempty"`
}

// SeekHandler seeks to a fraction of the duration or by a relative offset in seconds.
func (h *Handler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var position float64
	switch {
	case req.Fraction != nil && req.Delta == nil:
		position = h.player.SeekFraction(*req.Fraction)
	case req.Delta != nil && req.Fraction == nil:
		position = h.player.SeekRelative(*req.Delta)
	default:
		writeError(w, http.StatusBadRequest, "exactly one of fraction or delta is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"position": position})
}

func (h *Handler) VolumeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume is required")
		return
	}
	h.player.SetVolume(*req.Volume)
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}

func (h *Handler) MuteHandler(w http.ResponseWriter, r *http.Request) {
	h.player.ToggleMute()
	writeJSON(w, http.StatusOK, h.player.Snapshot())
}
