package model

// Album 表示一张专辑
type Album struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	AuthorID   string  `json:"authorId,omitempty"`
	OwnerID    string  `json:"ownerId,omitempty"`
	Authors    []User  `json:"authors,omitempty"`
	CreatedAt  any     `json:"createdAt"` // either an RFC3339 string or {seconds, nanos}
	AvatarURL  *string `json:"avatarUrl"`
	Tracks     []Track `json:"tracks,omitempty"`
	TrackCount int     `json:"trackCount,omitempty"`
}

// CreateAlbumRequest is the body of POST /album.
type CreateAlbumRequest struct {
	Title     string   `json:"title"`
	AuthorIDs []string `json:"authorIds,omitempty"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
}
