package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
	"github.com/sho0pi/naturaltime"
)

const queuePreviewSize = 10

var sleepParser *naturaltime.Parser

func init() {
	var err error
	sleepParser, err = naturaltime.New()
	if err != nil {
		sys.LogFatal(sys.MsgAudioNaturalTimeInitFail, err)
	}
}

func handleAudioSkip(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	if !player.Skip(*event.GuildID()) {
		audioRespondNow(event, sys.MsgAudioNothingPlaying, true)
		return
	}
	audioRespondNow(event, sys.MsgAudioSkipped, false)
}

func handleAudioPause(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	if !player.Pause(*event.GuildID()) {
		audioRespondNow(event, sys.MsgAudioNothingPlaying, true)
		return
	}
	audioRespondNow(event, sys.MsgAudioPaused, false)
}

func handleAudioResume(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	if !player.Resume(*event.GuildID()) {
		audioRespondNow(event, sys.MsgAudioNothingPaused, true)
		return
	}
	audioRespondNow(event, sys.MsgAudioResumed, false)
}

func handleAudioStop(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	_ = event.DeferCreateMessage(false)

	ctx, cancel := audioContext()
	defer cancel()

	if err := player.StopAndDisconnect(ctx, *event.GuildID()); err != nil {
		audioEditError(event, err)
		return
	}
	audioEdit(event, sys.MsgAudioStopped)
}

func handleAudioRepeat(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	enabled := data.Bool("enabled")
	player.SetRepeat(*event.GuildID(), enabled)
	if enabled {
		audioRespondNow(event, sys.MsgAudioRepeatOn, false)
		return
	}
	audioRespondNow(event, sys.MsgAudioRepeatOff, false)
}

func handleAudioShuffle(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	if player.Snapshot(*event.GuildID()).Len() < 2 {
		audioRespondNow(event, sys.MsgAudioNothingToShuffle, true)
		return
	}
	player.Shuffle(*event.GuildID())
	audioRespondNow(event, sys.MsgAudioShuffled, false)
}

func handleAudioNowPlaying(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	guildID := *event.GuildID()
	song, ok := player.NowPlaying(guildID)
	if !ok {
		audioRespondNow(event, sys.MsgAudioNothingPlaying, true)
		return
	}
	audioRespondNow(event, formatNowPlaying(song, player.State(guildID), player.Snapshot(guildID)), false)
}

func handleAudioList(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	snap := player.Snapshot(*event.GuildID())
	if snap.NowPlaying == nil && snap.Len() == 0 {
		audioRespondNow(event, sys.MsgAudioQueueEmpty, true)
		return
	}
	audioRespondNow(event, formatQueue(snap), false)
}

func handleAudioSleep(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	guildID := *event.GuildID()
	when := strings.TrimSpace(data.String("when"))

	switch strings.ToLower(when) {
	case "cancel", "off", "never":
		if player.CancelSleep(guildID) {
			audioRespondNow(event, sys.MsgAudioSleepCancelled, false)
		} else {
			audioRespondNow(event, sys.MsgAudioNoSleep, true)
		}
		return
	}

	now := time.Now().UTC()
	at, err := parseSleepTime(when, now)
	if err != nil || !at.After(now) {
		audioRespondNow(event, sys.MsgAudioSleepParseFailed, true)
		return
	}
	player.StopAt(guildID, at)
	audioRespondNow(event, fmt.Sprintf(sys.MsgAudioSleepSet, at.Unix(), at.Unix()), false)
}

// parseSleepTime accepts natural language ("in 20 minutes", "at 11pm") and
// Go durations ("1h30m").
func parseSleepTime(input string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(input); err == nil {
		return now.Add(d), nil
	}
	result, err := sleepParser.ParseDate(input, now)
	if err == nil && result != nil {
		return *result, nil
	}
	return time.Time{}, fmt.Errorf("could not parse time: %s", input)
}

func formatNowPlaying(song audio.Song, state audio.PlaybackState, snap audio.QueueSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, sys.MsgAudioNowPlayingHeader, truncate(song.String(), 200))
	if link := song.WebpageURL; link != "" {
		fmt.Fprintf(&sb, "> <%s>\n", link)
	}
	if song.Uploader != "" {
		fmt.Fprintf(&sb, sys.MsgAudioNowPlayingUploader, song.Uploader)
	}
	if song.Duration > 0 {
		fmt.Fprintf(&sb, sys.MsgAudioNowPlayingDuration, formatDuration(song.Duration))
	}
	fmt.Fprintf(&sb, sys.MsgAudioNowPlayingState, state)
	if snap.Playlist != "" {
		fmt.Fprintf(&sb, sys.MsgAudioNowPlayingPlaylist, snap.Playlist)
	}
	if snap.Repeat {
		sb.WriteString(sys.MsgAudioNowPlayingRepeat)
	}
	return sb.String()
}

// formatQueue lists the now playing song and the next queuePreviewSize
// entries, temp queue first.
func formatQueue(snap audio.QueueSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, sys.MsgAudioQueueHeader, snap.Len())
	if snap.NowPlaying != nil {
		fmt.Fprintf(&sb, sys.MsgAudioQueueNowPlaying, truncate(snap.NowPlaying.String(), 100))
	}

	upcoming := append(append([]string{}, snap.Temp...), snap.Main...)
	for i, locator := range upcoming {
		if i == queuePreviewSize {
			fmt.Fprintf(&sb, sys.MsgAudioListMore, len(upcoming)-i)
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, displayLocator(locator))
	}
	if snap.Repeat {
		sb.WriteString(sys.MsgAudioNowPlayingRepeat)
	}
	return sb.String()
}

func displayLocator(locator string) string {
	if audio.IsSearch(locator) {
		return "`" + truncate(strings.TrimPrefix(locator, audio.SearchMarker), 100) + "`"
	}
	if audio.IsPlayable(locator) {
		return "<" + locator + ">"
	}
	return "`" + truncate(locator, 100) + "`"
}
