package services

import (
	"context"
	"net/url"

	"Soundy/client"
	"Soundy/model"
	"Soundy/session"
)

type Albums struct {
	c     *client.Client
	state *session.State
}

func NewAlbums(c *client.Client) *Albums {
	return &Albums{c: c, state: c.Session()}
}

func (a *Albums) ByID(ctx context.Context, id string) (*model.Album, error) {
	var resp struct {
		Album model.Album `json:"album"`
	}
	if err := a.c.Get(ctx, "/album/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp.Album, nil
}

func (a *Albums) ByAuthor(ctx context.Context, authorID string) ([]model.Album, error) {
	var resp struct {
		Albums []model.Album `json:"albums"`
	}
	if err := a.c.Get(ctx, "/album/author/"+url.PathEscape(authorID), &resp); err != nil {
		return nil, err
	}
	return resp.Albums, nil
}

// Create 创建专辑，未指定作者时使用当前用户
func (a *Albums) Create(ctx context.Context, req model.CreateAlbumRequest) (*model.Album, error) {
	if len(req.AuthorIDs) == 0 {
		userID := a.state.UserID()
		if userID == "" {
			return nil, ErrNotAuthenticated
		}
		req.AuthorIDs = []string{userID}
	}
	var resp struct {
		Album model.Album `json:"album"`
	}
	if err := a.c.Post(ctx, "/album", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Album, nil
}

func (a *Albums) Latest(ctx context.Context, count int) ([]model.Album, error) {
	var resp struct {
		Albums []model.Album `json:"albums"`
	}
	if err := a.c.Get(ctx, "/album/latest", &resp, client.WithQuery(countQuery(count))); err != nil {
		return nil, err
	}
	return resp.Albums, nil
}
