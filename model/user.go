package model

import "time"

// User represents a user in the system.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Name         string    `json:"name" gorm:"uniqueIndex;size:64;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:255"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"` // Not exposed in API responses
	AvatarURL    *string   `json:"avatarUrl,omitempty" gorm:"size:512"`
	Bio          *string   `json:"bio,omitempty" gorm:"size:1024"`
	Role         string    `json:"role,omitempty" gorm:"size:32"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Playlists     []Playlist `json:"playlists,omitempty" gorm:"-"`
	Albums        []Album    `json:"albums,omitempty" gorm:"-"`
	IsCurrentUser bool       `json:"isCurrentUser,omitempty" gorm:"-"`
}

// UserUpdate carries the editable profile fields.
type UserUpdate struct {
	Name      *string `json:"name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}
