package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"Soundy/logger"
	"Soundy/model"
	"Soundy/repository"
	"Soundy/storage"

	"github.com/gorilla/mux"
	"github.com/grafov/m3u8"
)

// GetTrackHandler returns a track's metadata. A track that was only ingested into the media store
// is described from its manifest: the id as title and the summed segment durations.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	track, err := h.trackRepo.GetTrackByID(r.Context(), trackID)
	if errors.Is(err, repository.ErrNotFound) {
		track, err = h.trackFromMedia(r.Context(), trackID)
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if err != nil {
		logger.Error("[Track] 查询曲目失败", logger.String("trackId", trackID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.attachAuthor(r.Context(), track)
	writeJSON(w, http.StatusOK, track)
}

// GetTracksHandler lists every registered track.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.ListTracks(r.Context())
	h.writeTracks(w, r, tracks, err)
}

// GetAuthorTracksHandler lists the tracks of one author.
func (h *APIHandler) GetAuthorTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetTracksByAuthor(r.Context(), mux.Vars(r)["id"])
	h.writeTracks(w, r, tracks, err)
}

func (h *APIHandler) writeTracks(w http.ResponseWriter, r *http.Request, tracks []model.Track, err error) {
	if err != nil {
		logger.Error("[Track] 获取曲目列表失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get tracks")
		return
	}
	if tracks == nil {
		tracks = []model.Track{}
	}
	for i := range tracks {
		h.attachAuthor(r.Context(), &tracks[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// CreateTrackHandler registers track metadata. The author defaults to the caller.
func (h *APIHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if req.AuthorID == "" {
		req.AuthorID = claimsFromContext(r.Context()).UserID
	}

	track := &model.Track{
		Title:    req.Title,
		AuthorID: req.AuthorID,
		AlbumID:  req.AlbumID,
		Duration: req.Duration,
	}
	if req.AvatarURL != "" {
		track.AvatarURL = &req.AvatarURL
	}
	if err := h.trackRepo.CreateTrack(r.Context(), track); err != nil {
		logger.Error("[Track] 创建曲目失败", logger.String("title", req.Title), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create track")
		return
	}
	logger.Info("[Track] 曲目已创建", logger.String("trackId", track.ID), logger.String("title", track.Title))
	h.attachAuthor(r.Context(), track)
	writeJSON(w, http.StatusCreated, map[string]any{"track": track})
}

func (h *APIHandler) attachAuthor(ctx context.Context, track *model.Track) {
	if track.AuthorID == "" || track.Author != nil {
		return
	}
	if user, err := h.userRepo.GetUserByID(ctx, track.AuthorID); err == nil {
		track.Author = user
	}
}

func (h *APIHandler) trackFromMedia(ctx context.Context, trackID string) (*model.Track, error) {
	data, _, err := h.media.Get(ctx, trackID, storage.ManifestName)
	if err != nil {
		return nil, err
	}
	duration, err := manifestDuration(data)
	if err != nil {
		return nil, err
	}
	return &model.Track{ID: trackID, Title: trackID, Duration: duration}, nil
}

// manifestDuration sums the segment durations of a media playlist. Master playlists report 0.
func manifestDuration(data []byte) (float64, error) {
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return 0, err
	}
	if listType != m3u8.MEDIA {
		return 0, nil
	}
	var total float64
	for _, seg := range pl.(*m3u8.MediaPlaylist).Segments {
		if seg == nil {
			break
		}
		total += seg.Duration
	}
	return total, nil
}
