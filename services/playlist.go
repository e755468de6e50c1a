package services

import (
	"context"
	"net/url"

	"Soundy/client"
	"Soundy/model"
)

type Playlists struct {
	c *client.Client
}

func NewPlaylists(c *client.Client) *Playlists {
	return &Playlists{c: c}
}

func (p *Playlists) ByID(ctx context.Context, id string) (*model.Playlist, error) {
	var resp struct {
		Playlist model.Playlist `json:"playlist"`
	}
	if err := p.c.Get(ctx, "/playlist/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Playlist, nil
}

func (p *Playlists) ByAuthor(ctx context.Context, authorID string) ([]model.Playlist, error) {
	var resp struct {
		Playlists []model.Playlist `json:"playlists"`
	}
	if err := p.c.Get(ctx, "/playlist/author/"+url.PathEscape(authorID), &resp); err != nil {
		return nil, err
	}
	return resp.Playlists, nil
}

// Favorites returns the liked-tracks playlist of a user.
func (p *Playlists) Favorites(ctx context.Context, authorID string) (*model.Playlist, error) {
	var resp struct {
		Playlist model.Playlist `json:"playlist"`
	}
	if err := p.c.Get(ctx, "/playlist/favorite/"+url.PathEscape(authorID), &resp); err != nil {
		return nil, err
	}
	resp.Playlist.IsFavorite = true
	return &resp.Playlist, nil
}

func (p *Playlists) Latest(ctx context.Context, count int) ([]model.Playlist, error) {
	var resp struct {
		Playlists []model.Playlist `json:"playlists"`
	}
	if err := p.c.Get(ctx, "/playlist/latest", &resp, client.WithQuery(countQuery(count))); err != nil {
		return nil, err
	}
	return resp.Playlists, nil
}
