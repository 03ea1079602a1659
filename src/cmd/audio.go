package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/proc"
	"github.com/leeineian/kokoro-audio/src/sys"
)

// ===========================
// Command Registration
// ===========================

const audioCommandTimeout = 2 * time.Minute

func init() {
	queryOption := func(desc string) []discord.ApplicationCommandOption {
		return []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "query",
				Description: desc,
				Required:    true,
			},
		}
	}
	nameOption := func(desc string, autocomplete bool) discord.ApplicationCommandOption {
		return discord.ApplicationCommandOptionString{
			Name:         "name",
			Description:  desc,
			Required:     true,
			Autocomplete: autocomplete,
		}
	}

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "audio",
		Description: "Play music in your voice channel",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a song or playlist, replacing the queue",
				Options:     queryOption("URL, local track or search terms"),
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Add a song or playlist to the queue",
				Options:     queryOption("URL, local track or search terms"),
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback, clear the queue and leave the channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "repeat",
				Description: "Requeue songs after they finish",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "enabled",
						Description: "Whether repeat is on",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Shuffle the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "nowplaying",
				Description: "Show the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "horn",
				Description: "Sound the air horn",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "local",
				Description: "Play a local playlist",
				Options: []discord.ApplicationCommandOption{
					nameOption("Local playlist folder", true),
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "locals",
				Description: "List local playlists",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playlist-save",
				Description: "Save a playlist URL, or the current queue, under a name",
				Options: []discord.ApplicationCommandOption{
					nameOption("Playlist name (letters, digits and _)", false),
					discord.ApplicationCommandOptionString{
						Name:        "url",
						Description: "YouTube or SoundCloud playlist (default: current queue)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playlist-play",
				Description: "Play a saved playlist",
				Options: []discord.ApplicationCommandOption{
					nameOption("Saved playlist", true),
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playlist-delete",
				Description: "Delete a saved playlist",
				Options: []discord.ApplicationCommandOption{
					nameOption("Saved playlist", true),
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playlists",
				Description: "List saved playlists",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "sleep",
				Description: "Stop and leave at a given time",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "when",
						Description: "When to stop (e.g., 'in 30 minutes', '1h', 'cancel')",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "cache",
				Description: "Show the audio cache usage",
			},
		},
	}, handleAudio)

	sys.RegisterAutocompleteHandler("audio", handleAudioAutocomplete)
}

// handleAudio routes audio subcommands to their handlers
func handleAudio(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil || event.GuildID() == nil {
		return
	}

	player := proc.Player()
	if player == nil {
		audioRespondNow(event, sys.MsgAudioNotReady, true)
		return
	}

	switch sub := *data.SubCommandName; sub {
	case "play":
		handleAudioPlay(event, player, data.String("query"))
	case "horn":
		handleAudioPlay(event, player, audio.HornURL)
	case "queue":
		handleAudioQueue(event, player, data)
	case "local":
		handleAudioLocal(event, player, data)
	case "locals":
		handleAudioLocals(event, player)
	case "skip":
		handleAudioSkip(event, player)
	case "pause":
		handleAudioPause(event, player)
	case "resume":
		handleAudioResume(event, player)
	case "stop":
		handleAudioStop(event, player)
	case "repeat":
		handleAudioRepeat(event, player, data)
	case "shuffle":
		handleAudioShuffle(event, player)
	case "nowplaying":
		handleAudioNowPlaying(event, player)
	case "list":
		handleAudioList(event, player)
	case "playlist-save":
		handleAudioPlaylistSave(event, player, data)
	case "playlist-play":
		handleAudioPlaylistPlay(event, player, data)
	case "playlist-delete":
		handleAudioPlaylistDelete(event, player, data)
	case "playlists":
		handleAudioPlaylists(event, player)
	case "sleep":
		handleAudioSleep(event, player, data)
	case "cache":
		handleAudioCache(event, player)
	default:
		sys.LogWarn(sys.MsgAudioUnknownSubcommand, sub)
	}
}

// ===========================
// Helpers
// ===========================

func audioContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(sys.AppContext, audioCommandTimeout)
}

func quote(content string) string {
	if strings.HasPrefix(content, "#") || strings.HasPrefix(content, ">") {
		return content
	}
	return "> " + content
}

// audioRespondNow answers an interaction that has not been deferred.
func audioRespondNow(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	audioRespondSections(event, ephemeral, content)
}

// audioRespondSections answers with one text block per section, divided by
// separators.
func audioRespondSections(event *events.ApplicationCommandInteractionCreate, ephemeral bool, sections ...string) {
	components := make([]any, 0, 2*len(sections))
	for i, section := range sections {
		if i > 0 {
			components = append(components, sys.NewSeparator(true))
		}
		components = append(components, sys.NewTextDisplay(quote(section)))
	}
	container := sys.NewV2Container(components...)
	if err := sys.RespondInteractionV2(event.Client(), event.ID(), event.Token(), container, ephemeral); err != nil {
		sys.LogWarn(sys.MsgAudioRespondError, err)
	}
}

// audioEdit replaces the deferred response.
func audioEdit(event *events.ApplicationCommandInteractionCreate, content string) {
	container := sys.NewV2Container(sys.NewTextDisplay(quote(content)))
	if err := sys.EditInteractionV2(event.Client(), event.Token(), container); err != nil {
		sys.LogWarn(sys.MsgAudioRespondError, err)
	}
}

// audioEditError reports err on the deferred response.
func audioEditError(event *events.ApplicationCommandInteractionCreate, err error) {
	audioEdit(event, errorMessage(err))
}

// authorVoiceChannel returns the caller's voice channel once the bot is
// known to be able to connect and speak there.
func authorVoiceChannel(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, error) {
	guildID := *event.GuildID()
	caches := event.Client().Caches

	vs, ok := caches.VoiceState(guildID, event.User().ID)
	if !ok || vs.ChannelID == nil {
		return 0, audio.ErrAuthorNotConnected
	}
	channel, ok := caches.Channel(*vs.ChannelID)
	if !ok {
		return 0, audio.ErrAuthorNotConnected
	}
	self, ok := caches.SelfMember(guildID)
	if !ok {
		return 0, audio.ErrUnauthorizedConnect
	}
	if err := checkVoicePermissions(caches.MemberPermissionsInChannel(channel, self)); err != nil {
		return 0, err
	}
	return *vs.ChannelID, nil
}

func checkVoicePermissions(perms discord.Permissions) error {
	if !perms.Has(discord.PermissionConnect) {
		return audio.ErrUnauthorizedConnect
	}
	if !perms.Has(discord.PermissionSpeak) {
		return audio.ErrUnauthorizedSpeak
	}
	return nil
}

// canManage reports whether the caller may edit playlists they don't own.
func canManage(event *events.ApplicationCommandInteractionCreate) bool {
	member := event.Member()
	return member != nil && member.Permissions.Has(discord.PermissionManageGuild)
}

// errorMessage turns audio errors into the text shown to the user.
func errorMessage(err error) string {
	var lengthErr *audio.LengthError
	switch {
	case errors.As(err, &lengthErr):
		return fmt.Sprintf(sys.MsgAudioTooLong, formatDuration(lengthErr.Duration), formatDuration(lengthErr.Max))
	case errors.Is(err, audio.ErrAuthorNotConnected):
		return sys.MsgAudioAuthorNotConnected
	case errors.Is(err, audio.ErrUnauthorizedConnect):
		return sys.MsgAudioCannotConnect
	case errors.Is(err, audio.ErrUnauthorizedSpeak):
		return sys.MsgAudioCannotSpeak
	case errors.Is(err, audio.ErrAlreadyDownloading):
		return sys.MsgAudioAlreadyDownloading
	case errors.Is(err, audio.ErrInvalidLocator):
		return sys.MsgAudioInvalidLocator
	case errors.Is(err, audio.ErrInvalidPlaylist):
		return sys.MsgAudioInvalidPlaylist
	case errors.Is(err, audio.ErrInvalidPlaylistName):
		return sys.MsgAudioInvalidPlaylistName
	case errors.Is(err, audio.ErrPlaylistNotFound):
		return sys.MsgAudioPlaylistNotFound
	case errors.Is(err, audio.ErrUnauthorizedSave):
		return sys.MsgAudioPlaylistNotOwner
	case errors.Is(err, audio.ErrConnectTimeout), errors.Is(err, context.DeadlineExceeded):
		return sys.MsgAudioConnectTimeout
	case errors.Is(err, audio.ErrVoiceNotConnected):
		return sys.MsgAudioNotConnected
	case errors.Is(err, audio.ErrResolutionFailed):
		return sys.MsgAudioResolutionFailed
	default:
		return fmt.Sprintf(sys.MsgAudioUnexpectedError, err)
	}
}

// formatDuration renders d as m:ss or h:mm:ss.
func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
