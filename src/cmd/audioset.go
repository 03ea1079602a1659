package cmd

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/proc"
	"github.com/leeineian/kokoro-audio/src/sys"
)

const (
	maxVolume        = 200
	maxVoteThreshold = 100
)

func init() {
	adminPerm := discord.PermissionAdministrator

	serverOption := discord.ApplicationCommandOptionBool{
		Name:        "server",
		Description: "Apply to this server only (default: true)",
		Required:    false,
	}

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "audioset",
		Description:              "Audio settings (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Set the playback volume in percent",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "percent",
						Description: "0 to 200",
						Required:    true,
					},
					serverOption,
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "maxlength",
				Description: "Set the longest song allowed, in seconds (0 = no limit)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "seconds",
						Description: "Maximum song length",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "maxcache",
				Description: "Set the cache budget in MB (0 = automatic)",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "megabytes",
						Description: "Cache budget",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queuemode",
				Description: "Queue new songs instead of replacing the current one",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "enabled",
						Description: "Whether queue mode is on",
						Required:    true,
					},
					serverOption,
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "votethreshold",
				Description: "Set the vote threshold in percent",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "percent",
						Description: "0 to 100",
						Required:    true,
					},
					serverOption,
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "titlestatus",
				Description: "Show the current song as the voice channel status",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "enabled",
						Description: "Whether the title status is on",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "presence",
				Description: "Show playback activity in the bot's presence",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionBool{
						Name:        "enabled",
						Description: "Whether the activity rotates",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "show",
				Description: "Show the current audio settings",
			},
		},
	}, handleAudioSet)
}

func handleAudioSet(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil || event.GuildID() == nil {
		return
	}

	player := proc.Player()
	if player == nil {
		audioRespondNow(event, sys.MsgAudioNotReady, true)
		return
	}
	settings := player.Settings()
	guildID := *event.GuildID()

	ctx, cancel := audioContext()
	defer cancel()

	perServer := true
	if v, ok := data.OptBool("server"); ok {
		perServer = v
	}

	var (
		reply string
		err   error
	)
	switch *data.SubCommandName {
	case "volume":
		v := data.Int("percent")
		if v < 0 || v > maxVolume {
			audioRespondNow(event, fmt.Sprintf(sys.MsgAudioSetOutOfRange, 0, maxVolume), true)
			return
		}
		if perServer {
			_, err = settings.UpdateServer(ctx, guildID, func(s *audio.ServerSettings) { s.Volume = float64(v) })
		} else {
			_, err = settings.Update(ctx, func(s *audio.Settings) { s.Volume = float64(v) })
		}
		reply = fmt.Sprintf(sys.MsgAudioSetVolume, v, scopeName(perServer))
	case "maxlength":
		v := data.Int("seconds")
		if v < 0 {
			audioRespondNow(event, sys.MsgAudioSetNegative, true)
			return
		}
		_, err = settings.Update(ctx, func(s *audio.Settings) { s.MaxLength = v })
		reply = fmt.Sprintf(sys.MsgAudioSetMaxLength, maxLengthText(v))
	case "maxcache":
		v := data.Int("megabytes")
		if v < 0 {
			audioRespondNow(event, sys.MsgAudioSetNegative, true)
			return
		}
		_, err = settings.Update(ctx, func(s *audio.Settings) { s.MaxCache = v })
		reply = fmt.Sprintf(sys.MsgAudioSetMaxCache, humanize.Bytes(uint64(player.Cache().MaxMB()*1e6)))
	case "queuemode":
		v := data.Bool("enabled")
		if perServer {
			_, err = settings.UpdateServer(ctx, guildID, func(s *audio.ServerSettings) { s.QueueMode = v })
		} else {
			_, err = settings.Update(ctx, func(s *audio.Settings) { s.QueueMode = v })
		}
		reply = fmt.Sprintf(sys.MsgAudioSetQueueMode, onOff(v), scopeName(perServer))
	case "votethreshold":
		v := data.Int("percent")
		if v < 0 || v > maxVoteThreshold {
			audioRespondNow(event, fmt.Sprintf(sys.MsgAudioSetOutOfRange, 0, maxVoteThreshold), true)
			return
		}
		if perServer {
			_, err = settings.UpdateServer(ctx, guildID, func(s *audio.ServerSettings) { s.VoteThreshold = v })
		} else {
			_, err = settings.Update(ctx, func(s *audio.Settings) { s.VoteThreshold = v })
		}
		reply = fmt.Sprintf(sys.MsgAudioSetVoteThreshold, v, scopeName(perServer))
	case "titlestatus":
		v := data.Bool("enabled")
		_, err = settings.Update(ctx, func(s *audio.Settings) { s.TitleStatus = v })
		reply = fmt.Sprintf(sys.MsgAudioSetTitleStatus, onOff(v))
	case "presence":
		v := data.Bool("enabled")
		err = proc.SetPresenceVisible(ctx, v)
		reply = fmt.Sprintf(sys.MsgAudioSetPresence, onOff(v))
	case "show":
		audioRespondSections(event, true, formatSettings(settings.Get(), settings.Server(ctx, guildID), player.Cache().MaxMB())...)
		return
	default:
		return
	}

	if err != nil {
		sys.LogAudio(sys.MsgAudioSettingsSaveFailed, err)
		audioRespondNow(event, sys.MsgAudioSettingsNotSaved, true)
		return
	}
	audioRespondNow(event, reply, true)
}

func scopeName(perServer bool) string {
	if perServer {
		return "this server"
	}
	return "all servers"
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func maxLengthText(seconds int) string {
	if seconds == 0 {
		return "no limit"
	}
	return formatDuration(audio.Settings{MaxLength: seconds}.MaxDuration())
}

// formatSettings renders the server and global settings as two sections.
func formatSettings(global audio.Settings, server audio.ServerSettings, cacheMaxMB float64) []string {
	serverSection := sys.MsgAudioSettingsHeader +
		fmt.Sprintf(sys.MsgAudioSettingsServer, server.Volume, onOff(server.QueueMode), server.VoteThreshold)
	maxCache := "automatic"
	if global.MaxCache > 0 {
		maxCache = humanize.Bytes(uint64(global.MaxCache) * 1e6)
	}
	globalSection := fmt.Sprintf(sys.MsgAudioSettingsGlobal,
		global.Volume,
		maxLengthText(global.MaxLength),
		maxCache,
		humanize.Bytes(uint64(cacheMaxMB*1e6)),
		onOff(global.TitleStatus),
	)
	return []string{strings.TrimSpace(serverSection), globalSection}
}
