package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path"

	"Soundy/logger"
	"Soundy/storage"

	"github.com/gorilla/mux"
	"github.com/grafov/m3u8"
)

// ManifestHandler serves a track's playlist. Media playlists are re-rendered with segment URIs
// relative to the manifest, since transcoders may have written absolute base URLs.
func (h *APIHandler) ManifestHandler(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	data, _, err := h.media.Get(r.Context(), trackID, storage.ManifestName)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if err != nil {
		logger.Warn("[Stream] 获取播放列表失败", logger.String("trackId", trackID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load playlist")
		return
	}

	body, live, err := renderManifest(data)
	if err != nil {
		logger.Error("[Stream] 播放列表解析失败", logger.String("trackId", trackID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Invalid playlist")
		return
	}
	writeStreamResponse(w, body, "application/vnd.apple.mpegurl", live)
}

// SegmentHandler serves one media segment of a track.
func (h *APIHandler) SegmentHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trackID, name := vars["id"], vars["segment"]

	data, contentType, err := h.media.Get(r.Context(), trackID, name)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Segment not found")
		return
	}
	if err != nil {
		logger.Warn("获取流分片失败",
			logger.String("trackId", trackID),
			logger.String("fileName", name),
			logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "Invalid segment")
		return
	}
	writeStreamResponse(w, data, contentType, false)
}

// renderManifest rewrites media playlist segment URIs to bare file names. It reports whether the
// playlist is still growing.
func renderManifest(data []byte) ([]byte, bool, error) {
	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, false, err
	}
	if listType != m3u8.MEDIA {
		return data, false, nil
	}

	src := pl.(*m3u8.MediaPlaylist)
	var segments []*m3u8.MediaSegment
	for _, seg := range src.Segments {
		if seg == nil {
			break
		}
		segments = append(segments, seg)
	}

	out, err := m3u8.NewMediaPlaylist(0, uint(max(len(segments), 1)))
	if err != nil {
		return nil, false, err
	}
	out.SeqNo = src.SeqNo
	out.MediaType = src.MediaType
	for _, seg := range segments {
		if err := out.Append(path.Base(seg.URI), seg.Duration, seg.Title); err != nil {
			return nil, false, fmt.Errorf("failed to append segment %s: %w", seg.URI, err)
		}
	}
	if src.Closed {
		out.Close()
	}
	return out.Encode().Bytes(), !src.Closed, nil
}

// writeStreamResponse 写入流媒体响应
func writeStreamResponse(w http.ResponseWriter, data []byte, contentType string, noCache bool) {
	w.Header().Set("Content-Type", contentType)
	if noCache {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000")
	}

	if _, err := w.Write(data); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}
