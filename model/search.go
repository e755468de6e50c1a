package model

// SearchResult is the response of the /search endpoints.
type SearchResult struct {
	Pattern   string     `json:"pattern"`
	PageSize  int        `json:"pageSize"`
	PageNum   int        `json:"pageNum"`
	Tracks    []Track    `json:"tracks,omitempty"`
	Albums    []Album    `json:"albums,omitempty"`
	Playlists []Playlist `json:"playlists,omitempty"`
	Users     []User     `json:"users,omitempty"`
}
