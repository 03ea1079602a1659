package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidLocator      = errors.New("locator is not a playable url or local track")
	ErrInvalidPlaylist     = errors.New("locator is neither a youtube nor a soundcloud playlist")
	ErrInvalidPlaylistName = errors.New("playlist names may only contain letters, digits and underscores")
	ErrPlaylistNotFound    = errors.New("playlist not found")
	ErrMaximumLength       = errors.New("song exceeds the maximum length")
	ErrResolutionFailed    = errors.New("could not resolve song")
	ErrAuthorNotConnected  = errors.New("author is not in a voice channel")
	ErrUnauthorizedConnect = errors.New("missing permission to connect to the voice channel")
	ErrUnauthorizedSpeak   = errors.New("missing permission to speak in the voice channel")
	ErrUnauthorizedSave    = errors.New("playlist belongs to another user")
	ErrVoiceNotConnected   = errors.New("not connected and no channel to reconnect to")
	ErrConnectTimeout      = errors.New("timed out connecting to the voice channel")
	ErrAlreadyDownloading  = errors.New("a download is already in progress")
	ErrSuperseded          = errors.New("download was superseded by another request")
)

// LengthError reports a song whose duration is over the configured ceiling.
type LengthError struct {
	ID       string
	Duration time.Duration
	Max      time.Duration
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("song %s has duration %s > %s", e.ID, e.Duration, e.Max)
}

func (e *LengthError) Is(target error) bool {
	return target == ErrMaximumLength
}

func resolutionFailed(locator string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrResolutionFailed, locator, err)
}
