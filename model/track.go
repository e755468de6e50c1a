package model

import "time"

// Track represents an audio track as returned by the REST API.
type Track struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Title     string    `json:"title" gorm:"size:255;not null"`
	Author    *User     `json:"author,omitempty" gorm:"-"`
	AuthorID  string    `json:"authorId" gorm:"index;size:36"`
	Album     *Album    `json:"album,omitempty" gorm:"-"`
	AlbumID   string    `json:"albumId" gorm:"size:36"`
	IsLiked   bool      `json:"isLiked" gorm:"-"`
	Duration  float64   `json:"duration"` // Duration in seconds
	CreatedAt time.Time `json:"createdAt"`
	AvatarURL *string   `json:"avatarUrl" gorm:"size:512"`
}

// TrackDescriptor identifies playable content. The player keeps its own copy and never mutates
// the caller's value.
type TrackDescriptor struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	DurationHint float64 `json:"durationHint,omitempty"`
	Cover        string  `json:"coverReference,omitempty"`
	Owner        string  `json:"ownerDisplay,omitempty"`
}

// Descriptor builds the playback descriptor of a track.
func (t *Track) Descriptor() TrackDescriptor {
	d := TrackDescriptor{
		ID:           t.ID,
		Title:        t.Title,
		DurationHint: t.Duration,
	}
	if t.AvatarURL != nil {
		d.Cover = *t.AvatarURL
	}
	if t.Author != nil {
		d.Owner = t.Author.Name
	}
	return d
}

// CreateTrackRequest is the body of POST /track.
type CreateTrackRequest struct {
	Title     string  `json:"title"`
	AuthorID  string  `json:"authorId,omitempty"`
	AlbumID   string  `json:"albumId"`
	Duration  float64 `json:"duration"`
	AvatarURL string  `json:"avatarUrl"`
}
