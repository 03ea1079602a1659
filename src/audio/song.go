package audio

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SearchMarker prefixes free text that has to be resolved through a search
// provider before it can be played.
const SearchMarker = "[SEARCH:]"

var (
	youtubeURLRegex      = regexp.MustCompile(`^(https?\:\/\/)?(www\.|m\.)?(youtube\.com|youtu\.?be)\/.+$`)
	youtubePlaylistRegex = regexp.MustCompile(`^(https?\:\/\/)?(www\.)?(youtube\.com|youtu\.?be)(\/playlist\?).*(list=)(.*)(&|$)`)
	soundcloudURLRegex   = regexp.MustCompile(`^(https?\:\/\/)?(www\.)?(soundcloud\.com\/)`)
)

// Song is the resolved metadata of a playable item. ID doubles as the cache
// file name; for local tracks it is the path relative to the local tracks
// directory.
type Song struct {
	ID         string
	Title      string
	URL        string
	WebpageURL string
	Uploader   string
	Duration   time.Duration
	Local      bool
}

// Requeue returns the locator used when the song is put back on the queue.
func (s Song) Requeue() string {
	if s.WebpageURL != "" {
		return s.WebpageURL
	}
	if s.Local {
		return s.ID
	}
	return s.URL
}

func (s Song) String() string {
	if s.Title != "" {
		return s.Title
	}
	return s.ID
}

func IsYouTubeURL(u string) bool {
	return youtubeURLRegex.MatchString(u)
}

func IsYouTubePlaylist(u string) bool {
	return IsYouTubeURL(u) && youtubePlaylistRegex.MatchString(u)
}

func IsSoundCloudURL(u string) bool {
	return soundcloudURLRegex.MatchString(u)
}

func IsSoundCloudPlaylist(u string) bool {
	return IsSoundCloudURL(u) && strings.Contains(u, "/sets/")
}

// IsPlayable reports whether u points at a host the fetcher knows how to
// resolve.
func IsPlayable(u string) bool {
	return IsYouTubeURL(u) || IsSoundCloudURL(u)
}

func IsPlaylist(u string) bool {
	return IsYouTubePlaylist(u) || IsSoundCloudPlaylist(u)
}

func IsSearch(locator string) bool {
	return strings.HasPrefix(locator, SearchMarker)
}

// NormalizeLocator turns raw user input into a queueable locator. Input
// without a dot is treated as search text; YouTube links lose everything
// after the first "&" so radio and mix parameters do not turn a single video
// into a list.
func NormalizeLocator(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidLocator
	}
	if IsSearch(input) {
		return input, nil
	}
	if !strings.Contains(input, ".") {
		return SearchMarker + input, nil
	}
	if !IsPlayable(input) {
		return "", ErrInvalidLocator
	}
	if IsYouTubeURL(input) && !IsYouTubePlaylist(input) {
		input = strings.SplitN(input, "&", 2)[0]
	}
	return input, nil
}

func localSong(dir, locator string) Song {
	name := filepath.Base(locator)
	return Song{
		ID:    locator,
		Title: strings.TrimSuffix(name, filepath.Ext(name)),
		URL:   filepath.Join(dir, locator),
		Local: true,
	}
}
