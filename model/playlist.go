package model

import "time"

// Playlist 表示用户的播放列表
type Playlist struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     *User     `json:"author"`
	AuthorID   string    `json:"authorId"`
	CreatedAt  time.Time `json:"createdAt"`
	IsFavorite bool      `json:"isFavorite"`
	Tracks     []Track   `json:"tracks"`
	TrackCount int       `json:"trackCount"`
	AvatarURL  *string   `json:"avatarUrl"`
}
