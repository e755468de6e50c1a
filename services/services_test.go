package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"Soundy/model"
	"Soundy/session"
)

func TestDataServices(t *testing.T) {
	var lastQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"tracks": []model.Track{{ID: "t1"}, {ID: "t2"}}})
	})
	mux.HandleFunc("/track", func(w http.ResponseWriter, r *http.Request) {
		var req model.CreateTrackRequest
		decode(r, &req)
		writeJSON(w, http.StatusCreated, map[string]any{"track": model.Track{ID: "t3", Title: req.Title, AuthorID: req.AuthorID}})
	})
	mux.HandleFunc("/track/t1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/album/latest", func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]any{"albums": []model.Album{{ID: "a1"}}})
	})
	mux.HandleFunc("/track/search", func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, model.SearchResult{Pattern: r.URL.Query().Get("pattern"), Tracks: []model.Track{{ID: "t1"}}})
	})
	mux.HandleFunc("/playlist/favorite/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"playlist": model.Playlist{ID: "p1"}})
	})

	c, _ := newClient(t, mux)
	c.Session().Set(context.Background(), session.Credentials{UserID: "u1", AccessToken: "a1", RefreshToken: "r1"})
	svc := New(c)
	ctx := context.Background()

	t.Run("All Tracks", func(t *testing.T) {
		tracks, err := svc.Tracks.All(ctx)
		if err != nil || len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %v, %v", tracks, err)
		}
	})

	t.Run("Create Defaults Author", func(t *testing.T) {
		track, err := svc.Tracks.Create(ctx, model.CreateTrackRequest{Title: "Intro", AlbumID: "a1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if track.AuthorID != "u1" {
			t.Errorf("expected author u1, got %q", track.AuthorID)
		}
	})

	t.Run("Delete Accepts 204", func(t *testing.T) {
		if err := svc.Tracks.Delete(ctx, "t1"); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Latest Default Count", func(t *testing.T) {
		if _, err := svc.Albums.Latest(ctx, 0); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if lastQuery != "count=10" {
			t.Errorf("expected count=10, got %q", lastQuery)
		}
	})

	t.Run("Search Paging", func(t *testing.T) {
		res, err := svc.Search.Tracks(ctx, SearchParams{Pattern: "lo fi"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Pattern != "lo fi" || len(res.Tracks) != 1 {
			t.Errorf("unexpected result %+v", res)
		}
		if !strings.Contains(lastQuery, "pageNumber=1") || !strings.Contains(lastQuery, "pageSize=10") {
			t.Errorf("expected default paging, got %q", lastQuery)
		}
	})

	t.Run("Favorites Flagged", func(t *testing.T) {
		p, err := svc.Playlists.Favorites(ctx, "u1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !p.IsFavorite {
			t.Error("expected favorites playlist to be flagged")
		}
	})
}
