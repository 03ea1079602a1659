package proc

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
)

const (
	configKeyPresence = "presence_visible"
	defaultPresence   = "/audio play"
)

var (
	presenceOnce     sync.Once
	lastPresenceText string
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		presenceOnce.Do(func() {
			sys.RegisterDaemon(sys.LogAudio, func(ctx context.Context) (bool, func(), func()) {
				return true, func() { runPresenceRotator(ctx, client) }, nil
			})
		})
	})
}

// SetPresenceVisible turns the rotating activity on or off. It takes effect
// at the next rotation.
func SetPresenceVisible(ctx context.Context, visible bool) error {
	return sys.SetBotConfig(ctx, configKeyPresence, strconv.FormatBool(visible))
}

func presenceInterval() time.Duration {
	return time.Duration(30+rand.Intn(31)) * time.Second
}

func runPresenceRotator(ctx context.Context, client *bot.Client) {
	for {
		next := presenceInterval()
		updatePresence(ctx, client)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func updatePresence(ctx context.Context, client *bot.Client) {
	visible, err := sys.GetBotConfig(ctx, configKeyPresence)
	if err != nil || visible == "false" {
		_ = client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	var candidates []string
	if player := Player(); player != nil {
		candidates = presenceCandidates(player.Snapshots(), player.Cache().SizeBytes())
	}
	text := pickPresence(candidates, lastPresenceText)
	lastPresenceText = text

	err = client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	)
	if err != nil {
		sys.LogAudio(sys.MsgPresenceUpdateFail, err)
		return
	}
	sys.LogDebug(sys.MsgPresenceRotated, text)
}

// presenceCandidates lists the activity texts that currently say something.
func presenceCandidates(snaps []audio.QueueSnapshot, cacheBytes int64) []string {
	var out []string
	playing, queued := 0, 0
	for _, snap := range snaps {
		queued += snap.Len()
		if snap.NowPlaying != nil {
			playing++
			out = append(out, snap.NowPlaying.String())
		}
	}
	if playing > 1 {
		out = append(out, fmt.Sprintf("music in %d servers", playing))
	}
	if queued > 0 {
		out = append(out, fmt.Sprintf("%d queued songs", queued))
	}
	if cacheBytes > 0 {
		out = append(out, humanize.Bytes(uint64(cacheBytes))+" of cached audio")
	}
	return out
}

// pickPresence avoids repeating last unless it is the only choice.
func pickPresence(candidates []string, last string) string {
	if len(candidates) == 0 {
		return defaultPresence
	}
	var fresh []string
	for _, c := range candidates {
		if c != last {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return candidates[0]
	}
	return fresh[rand.Intn(len(fresh))]
}
