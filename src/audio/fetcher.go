package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Provider is the media resolution backend. Implementations block on
// network I/O and must honour ctx.
type Provider interface {
	// Search returns the video id of the best match for query.
	Search(ctx context.Context, query string) (string, error)
	Info(ctx context.Context, url string) (Song, error)
	// Download writes the audio of song to dest.
	Download(ctx context.Context, song Song, dest string) error
	// Playlist lists the entry urls of a playlist.
	Playlist(ctx context.Context, url string) ([]string, error)
}

// Fetcher resolves locators into songs and makes sure their audio is on
// disk.
type Fetcher struct {
	provider Provider
	cache    *Cache
	localDir string
	logger   *slog.Logger
}

func NewFetcher(provider Provider, cache *Cache, localDir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{provider: provider, cache: cache, localDir: localDir, logger: logger}
}

// CheckLength returns a *LengthError when song is longer than max. A zero
// max or an unknown duration always passes.
func CheckLength(song Song, max time.Duration) error {
	if max > 0 && song.Duration > max {
		return &LengthError{ID: song.ID, Duration: song.Duration, Max: max}
	}
	return nil
}

// Metadata resolves locator without downloading anything and applies the
// duration ceiling.
func (f *Fetcher) Metadata(ctx context.Context, locator string, max time.Duration) (Song, error) {
	if IsSearch(locator) {
		query := strings.TrimSpace(strings.TrimPrefix(locator, SearchMarker))
		id, err := f.provider.Search(ctx, query)
		if err != nil {
			return Song{}, resolutionFailed(locator, err)
		}
		if id == "" {
			return Song{}, resolutionFailed(locator, fmt.Errorf("no results for %q", query))
		}
		locator = "https://youtube.com/watch?v=" + id
	} else if !IsPlayable(locator) {
		if song, ok := f.Local(locator); ok {
			return song, nil
		}
		return Song{}, fmt.Errorf("%w: %s", ErrInvalidLocator, locator)
	}

	song, err := f.provider.Info(ctx, locator)
	if err != nil {
		return Song{}, resolutionFailed(locator, err)
	}
	if song.ID == "" {
		return Song{}, resolutionFailed(locator, fmt.Errorf("provider returned no id"))
	}
	if song.WebpageURL == "" {
		song.WebpageURL = locator
	}
	if err := CheckLength(song, max); err != nil {
		return song, err
	}
	return song, nil
}

// Download fetches the audio of song into the cache unless it is already
// there.
func (f *Fetcher) Download(ctx context.Context, song Song) (Song, error) {
	if song.Local {
		return song, nil
	}
	if f.cache.Has(song.ID) {
		f.logger.Debug(fmt.Sprintf(msgCacheHit, song.ID))
		return song, nil
	}
	f.logger.Debug(fmt.Sprintf(msgCacheMiss, song.ID))
	if err := f.cache.Ensure(); err != nil {
		return song, err
	}
	dest := f.cache.Path(song.ID)
	if err := f.provider.Download(ctx, song, dest+partSuffix); err != nil {
		_ = os.Remove(dest + partSuffix)
		return song, resolutionFailed(song.WebpageURL, err)
	}
	if err := os.Rename(dest+partSuffix, dest); err != nil {
		return song, resolutionFailed(song.WebpageURL, err)
	}
	return song, nil
}

// Cached reports whether song can be played without a download.
func (f *Fetcher) Cached(song Song) bool {
	return song.Local || f.cache.Has(song.ID)
}

// Resolve is Metadata followed by Download when wantDownload is set.
func (f *Fetcher) Resolve(ctx context.Context, locator string, max time.Duration, wantDownload bool) (Song, error) {
	song, err := f.Metadata(ctx, locator, max)
	if err != nil || !wantDownload {
		return song, err
	}
	return f.Download(ctx, song)
}

// ExpandPlaylist lists the playable item urls of a playlist url.
func (f *Fetcher) ExpandPlaylist(ctx context.Context, locator string) ([]string, error) {
	if !IsPlaylist(locator) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlaylist, locator)
	}
	entries, err := f.provider.Playlist(ctx, locator)
	if err != nil {
		return nil, resolutionFailed(locator, err)
	}
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == "" {
			continue
		}
		if IsSoundCloudPlaylist(locator) && strings.HasPrefix(e, "http:") {
			e = "https:" + strings.TrimPrefix(e, "http:")
		}
		urls = append(urls, e)
	}
	return urls, nil
}

// Local resolves a "<playlist>/<file>" locator inside the local tracks
// directory.
func (f *Fetcher) Local(locator string) (Song, bool) {
	if f.localDir == "" || locator == "" || filepath.IsAbs(locator) {
		return Song{}, false
	}
	clean := filepath.Clean(locator)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return Song{}, false
	}
	info, err := os.Stat(filepath.Join(f.localDir, clean))
	if err != nil || !info.Mode().IsRegular() {
		return Song{}, false
	}
	return localSong(f.localDir, clean), true
}

// LocalPlaylists lists the directories under the local tracks directory.
func (f *Fetcher) LocalPlaylists() ([]string, error) {
	entries, err := os.ReadDir(f.localDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LocalPlaylist returns the locators of every file in a local playlist.
func (f *Fetcher) LocalPlaylist(name string) ([]string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, ErrInvalidPlaylistName
	}
	entries, err := os.ReadDir(filepath.Join(f.localDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, name)
		}
		return nil, err
	}
	var songs []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			songs = append(songs, filepath.Join(name, e.Name()))
		}
	}
	sort.Strings(songs)
	return songs, nil
}
