package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPlaylistName(t *testing.T) {
	assert.True(t, ValidPlaylistName("road_trip"))
	assert.True(t, ValidPlaylistName("Mix2024"))
	assert.False(t, ValidPlaylistName(""))
	assert.False(t, ValidPlaylistName("road trip"))
	assert.False(t, ValidPlaylistName("../etc"))
}

func TestPlayer_SavePlaylistPermissions(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	ctx := context.Background()
	const alice, bob = 11, 12

	_, err := p.SavePlaylist(ctx, testServer, alice, "bad name", "", false)
	assert.ErrorIs(t, err, ErrInvalidPlaylistName)

	_, err = p.SavePlaylist(ctx, testServer, alice, "mix", "", false)
	assert.ErrorIs(t, err, ErrInvalidPlaylist)

	p.queues.Enqueue(testServer, "https://www.youtube.com/watch?v=a", "https://www.youtube.com/watch?v=b")
	pl, err := p.SavePlaylist(ctx, testServer, alice, "mix", "", false)
	require.NoError(t, err)
	assert.Len(t, pl.URLs, 2)

	_, err = p.SavePlaylist(ctx, testServer, bob, "mix", "", false)
	assert.ErrorIs(t, err, ErrUnauthorizedSave)
	_, err = p.SavePlaylist(ctx, testServer, bob, "mix", "", true)
	require.NoError(t, err)

	names, err := p.Playlists(ctx, testServer)
	require.NoError(t, err)
	assert.Equal(t, []string{"mix"}, names)

	assert.ErrorIs(t, p.DeletePlaylist(ctx, testServer, alice, "mix", false), ErrUnauthorizedSave)
	require.NoError(t, p.DeletePlaylist(ctx, testServer, bob, "mix", false))
	assert.ErrorIs(t, p.DeletePlaylist(ctx, testServer, bob, "mix", false), ErrPlaylistNotFound)
}

func TestPlayer_SavePlaylistFromURL(t *testing.T) {
	p, prov, _ := newTestPlayer(t)
	ctx := context.Background()
	url := "https://www.youtube.com/playlist?list=PL1"
	prov.playlists[url] = []string{"https://www.youtube.com/watch?v=a", "https://www.youtube.com/watch?v=b"}

	pl, err := p.SavePlaylist(ctx, testServer, 11, "yt", url, false)
	require.NoError(t, err)
	assert.Equal(t, prov.playlists[url], pl.URLs)

	n, err := p.PlaySavedPlaylist(ctx, testServer, 500, "yt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	snap := p.Snapshot(testServer)
	assert.Equal(t, "yt", snap.Playlist)
	assert.True(t, snap.Repeat)
	assert.Equal(t, pl.URLs, snap.Main)
}
