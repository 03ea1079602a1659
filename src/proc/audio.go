package proc

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
	"golang.org/x/time/rate"
)

var (
	audioOnce      sync.Once
	audioMu        sync.RWMutex
	audioPlayer    *audio.Player
	audioTransport *VoiceTransport

	botStatesMu sync.Mutex
	botStates   = map[snowflake.ID]audio.VoiceMemberState{}
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		audioOnce.Do(func() {
			if err := startAudio(ctx, client); err != nil {
				sys.LogError(sys.MsgAudioStartFailed, err)
			}
		})
	})
	sys.RegisterVoiceStateUpdateHandler(onBotVoiceStateUpdate)
}

// Player returns the audio player, or nil before the client is ready.
func Player() *audio.Player {
	audioMu.RLock()
	defer audioMu.RUnlock()
	return audioPlayer
}

func startAudio(ctx context.Context, client *bot.Client) error {
	cfg := sys.GlobalConfig
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	store := sys.NewAudioStore(sys.DB)
	if cfg.SettingsImport != "" {
		if _, err := store.ImportLegacySettings(ctx, cfg.SettingsImport); err != nil {
			sys.LogWarn(sys.MsgAudioImportFailed, err)
		}
	}

	settings, err := audio.NewSettingsManager(ctx, store, sys.ComponentLogger("audio"))
	if err != nil {
		return err
	}

	transport := NewVoiceTransport(client)
	player := audio.NewPlayer(
		audio.NewYtdlpProvider(cfg.YoutubeProxy, sys.ComponentLogger("downloader")),
		transport,
		settings,
		store,
		audio.Options{
			CacheDir:        cfg.CacheDir(),
			LocalDir:        cfg.LocalTracksDir(),
			PrefetchTimeout: cfg.PrefetchTimeout,
			ConnectTimeout:  cfg.ConnectTimeout,
			Limiter:         rate.NewLimiter(rate.Limit(cfg.DownloadRate), 3),
			ServerCount: func() int {
				n := 0
				for range client.Caches.Guilds() {
					n++
				}
				return n
			},
			Status:         transport,
			Logger:         sys.ComponentLogger("scheduler"),
			CacheLogger:    sys.ComponentLogger("cache"),
			DownloadLogger: sys.ComponentLogger("downloader"),
		},
	)
	if err := player.Prepare(); err != nil {
		return err
	}

	audioMu.Lock()
	audioPlayer = player
	audioTransport = transport
	audioMu.Unlock()

	sys.RegisterDaemon(sys.LogAudio, func(ctx context.Context) (bool, func(), func()) {
		return true, func() {
				player.Run(ctx)
			}, func() {
				sys.LogAudio(sys.MsgAudioShuttingDown)
				player.Close()
				transport.Shutdown(context.Background())
			}
	})
	return nil
}

// onBotVoiceStateUpdate feeds the bot's own voice state into the transport
// and the player. Server mute counts as muted.
func onBotVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	vs := event.VoiceState
	if vs.UserID != event.Client().ID() {
		return
	}

	audioMu.RLock()
	player, transport := audioPlayer, audioTransport
	audioMu.RUnlock()
	if player == nil {
		return
	}

	transport.trackChannel(vs.GuildID, vs.ChannelID)

	after := audio.VoiceMemberState{Muted: vs.GuildMute}
	if vs.ChannelID != nil {
		after.ChannelID = *vs.ChannelID
	}

	botStatesMu.Lock()
	before, ok := botStates[vs.GuildID]
	if vs.ChannelID == nil {
		delete(botStates, vs.GuildID)
	} else {
		botStates[vs.GuildID] = after
	}
	botStatesMu.Unlock()

	if !ok {
		before = audio.VoiceMemberState{ChannelID: after.ChannelID}
	}
	player.OnVoiceStateUpdate(vs.GuildID, before, after)
}
