package cmd

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/proc"
	"github.com/leeineian/kokoro-audio/src/sys"
)

func handleAudioPlaylistSave(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	_ = event.DeferCreateMessage(false)

	ctx, cancel := audioContext()
	defer cancel()

	name := data.String("name")
	url, _ := data.OptString("url")
	pl, err := player.SavePlaylist(ctx, *event.GuildID(), event.User().ID, name, strings.TrimSpace(url), canManage(event))
	if err != nil {
		audioEditError(event, err)
		return
	}
	audioEdit(event, fmt.Sprintf(sys.MsgAudioPlaylistSaved, pl.Name, len(pl.URLs)))
}

func handleAudioPlaylistPlay(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	channel, err := authorVoiceChannel(event)
	if err != nil {
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	_ = event.DeferCreateMessage(false)

	ctx, cancel := audioContext()
	defer cancel()

	name := data.String("name")
	n, err := player.PlaySavedPlaylist(ctx, *event.GuildID(), channel, name)
	if err != nil {
		audioEditError(event, err)
		return
	}
	audioEdit(event, fmt.Sprintf(sys.MsgAudioPlaylistStarted, name, n))
}

func handleAudioPlaylistDelete(event *events.ApplicationCommandInteractionCreate, player *audio.Player, data discord.SlashCommandInteractionData) {
	ctx, cancel := audioContext()
	defer cancel()

	name := data.String("name")
	if err := player.DeletePlaylist(ctx, *event.GuildID(), event.User().ID, name, canManage(event)); err != nil {
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	audioRespondNow(event, fmt.Sprintf(sys.MsgAudioPlaylistDeleted, name), false)
}

func handleAudioPlaylists(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	ctx, cancel := audioContext()
	defer cancel()

	names, err := player.Playlists(ctx, *event.GuildID())
	if err != nil {
		sys.LogAudio(sys.MsgAudioPlaylistListFailed, err)
		audioRespondNow(event, errorMessage(err), true)
		return
	}
	if len(names) == 0 {
		audioRespondNow(event, sys.MsgAudioNoPlaylists, true)
		return
	}
	audioRespondNow(event, formatNameList(sys.MsgAudioPlaylistsHeader, names), false)
}

func handleAudioCache(event *events.ApplicationCommandInteractionCreate, player *audio.Player) {
	c := player.Cache()
	audioRespondNow(event, fmt.Sprintf(sys.MsgAudioCacheStatus,
		humanize.Bytes(uint64(c.SizeBytes())),
		humanize.Bytes(uint64(c.MinMB()*1e6)),
		humanize.Bytes(uint64(c.MaxMB()*1e6)),
	), true)
}

// handleAudioAutocomplete suggests local or saved playlist names
func handleAudioAutocomplete(event *events.AutocompleteInteractionCreate) {
	player := proc.Player()
	if player == nil || event.GuildID() == nil || event.Data.SubCommandName == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	focused := ""
	for _, opt := range event.Data.Options {
		if opt.Focused {
			focused = strings.ToLower(opt.String())
			break
		}
	}

	var names []string
	var err error
	switch *event.Data.SubCommandName {
	case "local":
		names, err = player.LocalPlaylists()
	case "playlist-play", "playlist-delete":
		ctx, cancel := audioContext()
		defer cancel()
		names, err = player.Playlists(ctx, *event.GuildID())
	}
	if err != nil {
		sys.LogAudio(sys.MsgAudioAutocompleteFailed, err)
	}

	_ = event.AutocompleteResult(playlistChoices(names, focused))
}

func playlistChoices(names []string, focused string) []discord.AutocompleteChoice {
	var choices []discord.AutocompleteChoice
	for _, name := range names {
		if focused != "" && !strings.Contains(strings.ToLower(name), focused) {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  truncate(name, 100),
			Value: name,
		})
		if len(choices) >= 25 {
			break
		}
	}
	return choices
}
