package services

import (
	"context"
	"net/url"
	"strconv"

	"Soundy/client"
	"Soundy/model"
)

// SearchParams pages through search results. PageNum starts at 1.
type SearchParams struct {
	Pattern  string
	PageNum  int
	PageSize int
}

func (p SearchParams) query() url.Values {
	if p.PageNum <= 0 {
		p.PageNum = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 10
	}
	return url.Values{
		"pattern":    {p.Pattern},
		"pageNumber": {strconv.Itoa(p.PageNum)},
		"pageSize":   {strconv.Itoa(p.PageSize)},
	}
}

type Search struct {
	c *client.Client
}

func NewSearch(c *client.Client) *Search {
	return &Search{c: c}
}

func (s *Search) All(ctx context.Context, p SearchParams) (*model.SearchResult, error) {
	return s.search(ctx, "/search", p)
}

func (s *Search) Tracks(ctx context.Context, p SearchParams) (*model.SearchResult, error) {
	return s.search(ctx, "/track/search", p)
}

func (s *Search) Albums(ctx context.Context, p SearchParams) (*model.SearchResult, error) {
	return s.search(ctx, "/album/search", p)
}

func (s *Search) Playlists(ctx context.Context, p SearchParams) (*model.SearchResult, error) {
	return s.search(ctx, "/playlist/search", p)
}

func (s *Search) Users(ctx context.Context, p SearchParams) (*model.SearchResult, error) {
	return s.search(ctx, "/user/search", p)
}

func (s *Search) search(ctx context.Context, path string, p SearchParams) (*model.SearchResult, error) {
	var result model.SearchResult
	if err := s.c.Get(ctx, path, &result, client.WithQuery(p.query())); err != nil {
		return nil, err
	}
	return &result, nil
}
