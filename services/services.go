package services

import "Soundy/client"

// Services bundles every REST service over one shared client.
type Services struct {
	Auth      *Auth
	Users     *Users
	Tracks    *Tracks
	Albums    *Albums
	Playlists *Playlists
	Search    *Search
}

func New(c *client.Client) *Services {
	return &Services{
		Auth:      NewAuth(c),
		Users:     NewUsers(c),
		Tracks:    NewTracks(c),
		Albums:    NewAlbums(c),
		Playlists: NewPlaylists(c),
		Search:    NewSearch(c),
	}
}
