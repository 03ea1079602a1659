package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T) (*Fetcher, *fakeProvider, *Cache, string) {
	t.Helper()
	root := t.TempDir()
	cache := NewCache(filepath.Join(root, "cache"), nil, nil)
	local := filepath.Join(root, "localtracks")
	require.NoError(t, os.MkdirAll(local, 0755))
	p := newFakeProvider()
	return NewFetcher(p, cache, local, nil), p, cache, local
}

func TestFetcher_LengthCheckedBeforeDownload(t *testing.T) {
	f, p, cache, _ := newTestFetcher(t)
	url := "https://www.youtube.com/watch?v=long"
	p.add(url, Song{ID: "long", Title: "Long", Duration: 500 * time.Second})

	_, err := f.Resolve(context.Background(), url, 100*time.Second, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaximumLength)

	var lerr *LengthError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 500*time.Second, lerr.Duration)
	assert.Equal(t, 0, p.downloadCount("long"))
	assert.False(t, cache.Has("long"))
}

func TestFetcher_SearchResolvesToWatchURL(t *testing.T) {
	f, p, _, _ := newTestFetcher(t)
	p.search["lofi beats"] = "lofi1"
	p.add("https://youtube.com/watch?v=lofi1", Song{ID: "lofi1", Title: "Lofi"})

	song, err := f.Metadata(context.Background(), SearchMarker+"lofi beats", 0)
	require.NoError(t, err)
	assert.Equal(t, "lofi1", song.ID)
	assert.Equal(t, "https://youtube.com/watch?v=lofi1", song.WebpageURL)
}

func TestFetcher_SearchWithoutResults(t *testing.T) {
	f, _, _, _ := newTestFetcher(t)
	_, err := f.Metadata(context.Background(), SearchMarker+"nothing", 0)
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestFetcher_ProviderErrorIsResolutionFailed(t *testing.T) {
	f, _, _, _ := newTestFetcher(t)
	_, err := f.Metadata(context.Background(), "https://www.youtube.com/watch?v=gone", 0)
	assert.ErrorIs(t, err, ErrResolutionFailed)
}

func TestFetcher_InvalidLocator(t *testing.T) {
	f, _, _, _ := newTestFetcher(t)
	_, err := f.Metadata(context.Background(), "not/a/file.mp3", 0)
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestFetcher_CacheHitSkipsDownload(t *testing.T) {
	f, p, cache, _ := newTestFetcher(t)
	url := "https://www.youtube.com/watch?v=a"
	p.add(url, Song{ID: "a", Title: "A", Duration: time.Minute})

	song, err := f.Resolve(context.Background(), url, 0, true)
	require.NoError(t, err)
	assert.True(t, cache.Has(song.ID))
	assert.NoFileExists(t, cache.Path(song.ID)+partSuffix)

	_, err = f.Resolve(context.Background(), url, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, p.downloadCount("a"))
}

func TestFetcher_LocalTracks(t *testing.T) {
	f, _, _, local := newTestFetcher(t)
	require.NoError(t, os.MkdirAll(filepath.Join(local, "mix"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(local, "mix", "b.mp3"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(local, "mix", "a.mp3"), []byte("a"), 0644))

	song, err := f.Metadata(context.Background(), "mix/a.mp3", 0)
	require.NoError(t, err)
	assert.True(t, song.Local)
	assert.Equal(t, "a", song.Title)

	_, ok := f.Local("../etc/passwd")
	assert.False(t, ok)

	names, err := f.LocalPlaylists()
	require.NoError(t, err)
	assert.Equal(t, []string{"mix"}, names)

	songs, err := f.LocalPlaylist("mix")
	require.NoError(t, err)
	assert.Equal(t, []string{"mix/a.mp3", "mix/b.mp3"}, songs)

	_, err = f.LocalPlaylist("missing")
	assert.ErrorIs(t, err, ErrPlaylistNotFound)
	_, err = f.LocalPlaylist("..")
	assert.ErrorIs(t, err, ErrInvalidPlaylistName)
}

func TestFetcher_ExpandPlaylist(t *testing.T) {
	f, p, _, _ := newTestFetcher(t)
	sc := "https://soundcloud.com/artist/sets/album"
	p.playlists[sc] = []string{"http://soundcloud.com/artist/one", "", "https://soundcloud.com/artist/two"}

	urls, err := f.ExpandPlaylist(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://soundcloud.com/artist/one", "https://soundcloud.com/artist/two"}, urls)

	_, err = f.ExpandPlaylist(context.Background(), "https://www.youtube.com/watch?v=a")
	assert.ErrorIs(t, err, ErrInvalidPlaylist)
}

func TestParseYtdlpOutput(t *testing.T) {
	song, ok := parseInfoLine("abc\tTitle\tUploader\t212.0\thttps://www.youtube.com/watch?v=abc\thttps://cdn/stream")
	require.True(t, ok)
	assert.Equal(t, "abc", song.ID)
	assert.Equal(t, 212*time.Second, song.Duration)
	assert.Equal(t, "https://cdn/stream", song.URL)

	song, ok = parseInfoLine("abc\tLive\tNA\tNA\tNA\tNA")
	require.True(t, ok)
	assert.Zero(t, song.Duration)
	assert.Empty(t, song.Uploader)

	_, ok = parseInfoLine("garbage")
	assert.False(t, ok)

	urls := parsePlaylistLines("https://youtube.com/x\tid1\nNA\tid2\n\n", true)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=id1", "https://www.youtube.com/watch?v=id2"}, urls)
}
