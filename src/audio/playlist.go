package audio

import (
	"context"
	"unicode"

	"github.com/disgoorg/snowflake/v2"
)

// Playlist is a named list of locators saved by a user for one server.
type Playlist struct {
	GuildID  snowflake.ID
	Name     string
	AuthorID snowflake.ID
	URLs     []string
}

// CanEdit reports whether user may overwrite or delete the playlist.
func (p Playlist) CanEdit(user snowflake.ID) bool {
	return p.AuthorID == 0 || p.AuthorID == user
}

// PlaylistStore persists saved playlists. Get returns ErrPlaylistNotFound
// for unknown names.
type PlaylistStore interface {
	SavePlaylist(ctx context.Context, p Playlist) error
	GetPlaylist(ctx context.Context, guild snowflake.ID, name string) (Playlist, error)
	DeletePlaylist(ctx context.Context, guild snowflake.ID, name string) error
	ListPlaylists(ctx context.Context, guild snowflake.ID) ([]string, error)
}

// ValidPlaylistName accepts names made of letters, digits and underscores.
func ValidPlaylistName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
