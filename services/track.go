package services

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"Soundy/client"
	"Soundy/model"
	"Soundy/session"
)

// Tracks manages track metadata, uploads and likes.
type Tracks struct {
	c     *client.Client
	state *session.State
}

func NewTracks(c *client.Client) *Tracks {
	return &Tracks{c: c, state: c.Session()}
}

func (t *Tracks) ByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	if err := t.c.Get(ctx, "/tracks/"+url.PathEscape(id), &track); err != nil {
		return nil, err
	}
	return &track, nil
}

func (t *Tracks) All(ctx context.Context) ([]model.Track, error) {
	var resp struct {
		Tracks []model.Track `json:"tracks"`
	}
	if err := t.c.Get(ctx, "/tracks", &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

func (t *Tracks) ByAuthor(ctx context.Context, authorID string) ([]model.Track, error) {
	var resp struct {
		Tracks []model.Track `json:"tracks"`
	}
	if err := t.c.Get(ctx, "/track/author/"+url.PathEscape(authorID), &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// Create registers track metadata. An empty AuthorID defaults to the current user.
func (t *Tracks) Create(ctx context.Context, req model.CreateTrackRequest) (*model.Track, error) {
	if req.AuthorID == "" {
		req.AuthorID = t.state.UserID()
	}
	var resp struct {
		Track model.Track `json:"track"`
	}
	if err := t.c.Post(ctx, "/track", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Track, nil
}

// Upload sends an audio file for an existing track id.
func (t *Tracks) Upload(ctx context.Context, trackID, filename string, audio io.Reader) (*model.Track, error) {
	form := client.NewForm().
		AddField("id", trackID).
		AddFile("file", filename, audio)

	var track model.Track
	if err := t.c.Upload(ctx, "/track/upload", form, &track); err != nil {
		return nil, fmt.Errorf("failed to upload track %s: %w", trackID, err)
	}
	return &track, nil
}

func (t *Tracks) Delete(ctx context.Context, trackID string) error {
	return t.c.Delete(ctx, "/track/"+url.PathEscape(trackID), nil)
}

// Like toggles the like of the current user on a track.
func (t *Tracks) Like(ctx context.Context, trackID string) (*model.Track, error) {
	userID := t.state.UserID()
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	body := map[string]string{"trackId": trackID, "userId": userID}
	var resp struct {
		Success bool        `json:"success"`
		Track   model.Track `json:"track"`
	}
	if err := t.c.Post(ctx, "/track/like", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Track, nil
}
