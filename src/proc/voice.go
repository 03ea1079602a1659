package proc

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
)

const joinAttempts = 5

var errNoConnection = errors.New("no voice connection for guild")

// VoiceTransport drives the disgo voice manager for the audio player: one
// connection and at most one active stream per guild.
type VoiceTransport struct {
	client *bot.Client

	mu       sync.Mutex
	conns    map[snowflake.ID]voice.Conn
	channels map[snowflake.ID]snowflake.ID
	active   map[snowflake.ID]*Stream
}

var (
	_ audio.VoiceGateway = (*VoiceTransport)(nil)
	_ audio.StatusSetter = (*VoiceTransport)(nil)
)

func NewVoiceTransport(client *bot.Client) *VoiceTransport {
	return &VoiceTransport{
		client:   client,
		conns:    make(map[snowflake.ID]voice.Conn),
		channels: make(map[snowflake.ID]snowflake.ID),
		active:   make(map[snowflake.ID]*Stream),
	}
}

// Join connects to channelID. An existing connection in another channel of
// the guild is closed first.
func (t *VoiceTransport) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	t.mu.Lock()
	conn, ok := t.conns[guildID]
	current := t.channels[guildID]
	t.mu.Unlock()

	if ok {
		if current == channelID {
			return nil
		}
		t.closeConn(ctx, guildID)
	}

	sys.LogVoice(sys.MsgVoiceJoining, channelID, guildID)
	conn = t.client.VoiceManager.CreateConn(guildID)

	var lastErr error
	for i := range joinAttempts {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 1000 * time.Millisecond
			sys.LogVoice(sys.MsgVoiceRetrying, backoff, i+1, joinAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}
		if err := conn.Open(ctx, channelID, false, false); err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		break
	}

	if lastErr != nil {
		sys.LogVoice(sys.MsgVoiceJoinFailed, guildID, lastErr)
		conn.Close(context.Background())
		return lastErr
	}

	t.mu.Lock()
	t.conns[guildID] = conn
	t.channels[guildID] = channelID
	t.mu.Unlock()
	return nil
}

func (t *VoiceTransport) Disconnect(ctx context.Context, guildID snowflake.ID) error {
	t.closeConn(ctx, guildID)
	return nil
}

func (t *VoiceTransport) closeConn(ctx context.Context, guildID snowflake.ID) {
	t.mu.Lock()
	conn, ok := t.conns[guildID]
	stream := t.active[guildID]
	delete(t.conns, guildID)
	delete(t.channels, guildID)
	delete(t.active, guildID)
	t.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	if ok {
		sys.LogVoice(sys.MsgVoiceLeaving, guildID)
		conn.Close(ctx)
	}
}

func (t *VoiceTransport) ConnectedChannel(guildID snowflake.ID) (snowflake.ID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[guildID]; !ok {
		return 0, false
	}
	return t.channels[guildID], true
}

// CreateStream binds a stream for path to the guild's connection. The
// stream becomes the guild's active one once created.
func (t *VoiceTransport) CreateStream(guildID snowflake.ID, path string, opts audio.StreamOptions) (audio.Stream, error) {
	t.mu.Lock()
	conn, ok := t.conns[guildID]
	prev := t.active[guildID]
	if !ok {
		t.mu.Unlock()
		return nil, errNoConnection
	}
	s := newStream(t, guildID, conn, path, opts)
	t.active[guildID] = s
	t.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	return s, nil
}

// release detaches a finished stream from its connection unless another
// stream already replaced it.
func (t *VoiceTransport) release(s *Stream) {
	t.mu.Lock()
	current, ok := t.active[s.guildID]
	if ok && current == s {
		delete(t.active, s.guildID)
	}
	t.mu.Unlock()

	if !ok || current != s {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trySetOpusFrameProvider(s.conn, nil)
	trySetSpeaking(ctx, s.conn, 0)
}

// SetVoiceStatus writes the voice channel status shown under the channel
// name. An empty status clears it.
func (t *VoiceTransport) SetVoiceStatus(ctx context.Context, channelID snowflake.ID, status string) error {
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	return t.client.Rest.Do(route.Compile(nil), map[string]string{"status": status}, nil, rest.WithCtx(ctx))
}

// trackChannel follows the bot's own voice state. A nil channel means the
// bot was disconnected from outside.
func (t *VoiceTransport) trackChannel(guildID snowflake.ID, channelID *snowflake.ID) {
	if channelID == nil {
		t.mu.Lock()
		_, ok := t.conns[guildID]
		t.mu.Unlock()
		if ok {
			sys.LogVoice(sys.MsgVoiceExternalDisconnect, guildID)
			t.closeConn(context.Background(), guildID)
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[guildID]; !ok {
		return
	}
	if old := t.channels[guildID]; old != *channelID {
		sys.LogVoice(sys.MsgVoiceMoved, old, *channelID, guildID)
		t.channels[guildID] = *channelID
	}
}

// Shutdown stops every stream and closes every connection.
func (t *VoiceTransport) Shutdown(ctx context.Context) {
	t.mu.Lock()
	guilds := make([]snowflake.ID, 0, len(t.conns))
	for id := range t.conns {
		guilds = append(guilds, id)
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range guilds {
		wg.Add(1)
		go func(guildID snowflake.ID) {
			defer wg.Done()
			t.closeConn(ctx, guildID)
		}(id)
	}
	wg.Wait()
}
