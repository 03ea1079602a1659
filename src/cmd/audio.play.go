package cmd

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
)

func handleAudioPlay(event *events.ApplicationCommandInteractionCreate, player *audio.Player, query string) {
	channel, err := authorVoiceChannel(event)
	if err != nil {
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	_ = event.DeferCreateMessage(false)

	ctx, cancel := audioContext()
	defer cancel()

	sys.LogAudio(sys.MsgAudioPlayRequested, event.User().Username, event.User().ID, query)
	result, err := player.Play(ctx, *event.GuildID(), channel, query)
	if err != nil {
		audioEditError(event, err)
		return
	}
	if result == audio.PlayQueued {
		audioEdit(event, fmt.Sprintf(sys.MsgAudioQueued, 1, displayQuery(query)))
		return
	}
	audioEdit(event, fmt.Sprintf(sys.MsgAudioPlayStarted, displayQuery(query)))
}

func handleAudioQueue(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	channel, err := authorVoiceChannel(event)
	if err != nil {
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	_ = event.DeferCreateMessage(false)

	ctx, cancel := audioContext()
	defer cancel()

	query := data.String("query")
	added, err := player.Queue(ctx, *event.GuildID(), channel, query)
	if err != nil {
		audioEditError(event, err)
		return
	}
	audioEdit(event, fmt.Sprintf(sys.MsgAudioQueued, added, displayQuery(query)))
}

func handleAudioLocal(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	channel, err := authorVoiceChannel(event)
	if err != nil {
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	_ = event.DeferCreateMessage(false)

	ctx, cancel := audioContext()
	defer cancel()

	name := data.String("name")
	n, err := player.PlayLocalPlaylist(ctx, *event.GuildID(), channel, name)
	if err != nil {
		audioEditError(event, err)
		return
	}
	audioEdit(event, fmt.Sprintf(sys.MsgAudioPlaylistStarted, name, n))
}

func handleAudioLocals(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	names, err := player.LocalPlaylists()
	if err != nil {
		sys.LogAudio(sys.MsgAudioLocalListFailed, err)
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	if len(names) == 0 {
		audioRespondNow(event, sys.MsgAudioNoLocalPlaylists, true)
		return
	}
	audioRespondNow(event, formatNameList(sys.MsgAudioLocalsHeader, names), false)
}

// displayQuery strips the search marker from free text queries.
func displayQuery(query string) string {
	q := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), audio.SearchMarker))
	if audio.IsPlayable(q) {
		return "<" + q + ">"
	}
	return "`" + truncate(q, 100) + "`"
}

func formatNameList(header string, names []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, header, len(names))
	for i, name := range names {
		if i == 25 {
			fmt.Fprintf(&sb, sys.MsgAudioListMore, len(names)-i)
			break
		}
		fmt.Fprintf(&sb, "- `%s`\n", name)
	}
	return sb.String()
}
