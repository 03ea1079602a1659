package cmd

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{audio.ErrAuthorNotConnected, sys.MsgAudioAuthorNotConnected},
		{audio.ErrUnauthorizedConnect, sys.MsgAudioCannotConnect},
		{audio.ErrUnauthorizedSpeak, sys.MsgAudioCannotSpeak},
		{audio.ErrAlreadyDownloading, sys.MsgAudioAlreadyDownloading},
		{fmt.Errorf("wrapped: %w", audio.ErrPlaylistNotFound), sys.MsgAudioPlaylistNotFound},
		{audio.ErrUnauthorizedSave, sys.MsgAudioPlaylistNotOwner},
		{fmt.Errorf("%w: x", audio.ErrResolutionFailed), sys.MsgAudioResolutionFailed},
		{
			&audio.LengthError{ID: "a", Duration: 2 * time.Hour, Max: time.Hour},
			fmt.Sprintf(sys.MsgAudioTooLong, "2:00:00", "1:00:00"),
		},
		{errors.New("boom"), fmt.Sprintf(sys.MsgAudioUnexpectedError, "boom")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorMessage(tt.err), tt.err.Error())
	}
}

func TestCheckVoicePermissions(t *testing.T) {
	assert.NoError(t, checkVoicePermissions(discord.PermissionConnect|discord.PermissionSpeak))
	assert.ErrorIs(t, checkVoicePermissions(discord.PermissionSpeak), audio.ErrUnauthorizedConnect)
	assert.ErrorIs(t, checkVoicePermissions(discord.PermissionConnect), audio.ErrUnauthorizedSpeak)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:05", formatDuration(5*time.Second))
	assert.Equal(t, "3:07", formatDuration(3*time.Minute+7*time.Second))
	assert.Equal(t, "1:01:40", formatDuration(3700*time.Second))
}

func TestParseSleepTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	at, err := parseSleepTime("1h30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Minute), at)

	at, err = parseSleepTime("in 20 minutes", now)
	require.NoError(t, err)
	assert.True(t, at.After(now))

	_, err = parseSleepTime("", now)
	assert.Error(t, err)
}

func TestFormatQueue(t *testing.T) {
	snap := audio.QueueSnapshot{
		NowPlaying: &audio.Song{ID: "x", Title: "Current"},
		Temp:       []string{audio.SearchMarker + "lofi beats"},
		Main:       []string{"https://www.youtube.com/watch?v=abc"},
		Repeat:     true,
	}

	out := formatQueue(snap)
	assert.Contains(t, out, fmt.Sprintf(sys.MsgAudioQueueHeader, 2))
	assert.Contains(t, out, "**Current**")
	assert.Contains(t, out, "1. `lofi beats`")
	assert.Contains(t, out, "2. <https://www.youtube.com/watch?v=abc>")
	assert.Contains(t, out, sys.MsgAudioNowPlayingRepeat)
}

func TestFormatQueue_Truncates(t *testing.T) {
	var main []string
	for i := range queuePreviewSize + 5 {
		main = append(main, fmt.Sprintf("track%d.mp3", i))
	}
	out := formatQueue(audio.QueueSnapshot{Main: main})
	assert.Contains(t, out, fmt.Sprintf(sys.MsgAudioListMore, 5))
	assert.NotContains(t, out, "track10.mp3")
}

func TestDisplayQuery(t *testing.T) {
	assert.Equal(t, "<https://soundcloud.com/a/b>", displayQuery(" https://soundcloud.com/a/b "))
	assert.Equal(t, "`never gonna`", displayQuery(audio.SearchMarker+"never gonna"))
}

func TestPlaylistChoices(t *testing.T) {
	names := []string{"chill", "Gym_Mix", "party"}
	choices := playlistChoices(names, "mix")
	require.Len(t, choices, 1)
	assert.Equal(t, discord.AutocompleteChoiceString{Name: "Gym_Mix", Value: "Gym_Mix"}, choices[0])

	assert.Len(t, playlistChoices(names, ""), 3)

	var many []string
	for i := range 40 {
		many = append(many, fmt.Sprintf("p%d", i))
	}
	assert.Len(t, playlistChoices(many, ""), 25)
}

func TestFormatSettings(t *testing.T) {
	sections := formatSettings(audio.DefaultSettings(), audio.ServerSettings{Volume: 80, QueueMode: true, VoteThreshold: 50}, 300)
	require.Len(t, sections, 2)
	assert.True(t, strings.HasPrefix(sections[0], sys.MsgAudioSettingsHeader))
	assert.Contains(t, sections[0], "Volume: 80%")
	assert.Contains(t, sections[0], "Vote threshold: 50%")
	assert.Contains(t, sections[1], "Max length: 1:01:40")
	assert.Contains(t, sections[1], "Max cache: automatic (effective 300 MB)")
}
