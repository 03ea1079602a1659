package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	streamBitrate         = 64000
)

// PlaybackState is a server's position in the voice lifecycle.
type PlaybackState int

const (
	StateDisconnected PlaybackState = iota
	StateConnecting
	StateConnected
	StatePlaying
	StatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("PlaybackState(%d)", int(s))
	}
}

// Controller owns at most one stream per server.
type Controller struct {
	gw             VoiceGateway
	queues         *Queues
	settings       *SettingsManager
	cacheDir       string
	localDir       string
	connectTimeout time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	streams    map[snowflake.ID]Stream
	paused     map[snowflake.ID]bool
	connecting map[snowflake.ID]bool
}

type ControllerOptions struct {
	CacheDir       string
	LocalDir       string
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

func NewController(gw VoiceGateway, queues *Queues, settings *SettingsManager, opts ControllerOptions) *Controller {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		gw:             gw,
		queues:         queues,
		settings:       settings,
		cacheDir:       opts.CacheDir,
		localDir:       opts.LocalDir,
		connectTimeout: opts.ConnectTimeout,
		logger:         opts.Logger,
		streams:        make(map[snowflake.ID]Stream),
		paused:         make(map[snowflake.ID]bool),
		connecting:     make(map[snowflake.ID]bool),
	}
}

// Connect joins channel within the connect timeout and records it as the
// server's voice channel.
func (c *Controller) Connect(ctx context.Context, server, channel snowflake.ID) error {
	c.mu.Lock()
	c.connecting[server] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.connecting, server)
		c.mu.Unlock()
	}()

	jctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	if err := c.gw.Join(jctx, server, channel); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(jctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: channel %s", ErrConnectTimeout, channel)
		}
		return err
	}
	c.queues.SetVoiceChannel(server, channel)
	return nil
}

// ensureConnected guarantees a live connection, rejoining the stored channel
// when the bot dropped out. The rejoin only happens while valid holds, and
// is undone when valid stops holding during the join.
func (c *Controller) ensureConnected(ctx context.Context, server snowflake.ID, valid func() bool) error {
	stored, hasStored := c.queues.VoiceChannel(server)
	live, connected := c.gw.ConnectedChannel(server)
	if !connected {
		if !hasStored {
			return ErrVoiceNotConnected
		}
		if !valid() {
			return ErrSuperseded
		}
		c.logger.Debug(fmt.Sprintf(msgRejoining, server, stored))
		if err := c.Connect(ctx, server, stored); err != nil {
			return err
		}
		if !valid() {
			c.logger.Debug(fmt.Sprintf(msgRejoinDropped, stored, server))
			_ = c.gw.Disconnect(ctx, server)
			return ErrSuperseded
		}
		return nil
	}
	if live != stored {
		c.logger.Debug(fmt.Sprintf(msgStaleChannel, server, live))
		c.queues.SetVoiceChannel(server, live)
	}
	return nil
}

// Open starts a stream playing song without making it the server's stream;
// the caller hands it to Adopt or stops it. A nil valid always holds.
func (c *Controller) Open(ctx context.Context, server snowflake.ID, song Song, valid func() bool) (Stream, error) {
	if valid == nil {
		valid = func() bool { return true }
	}
	if err := c.ensureConnected(ctx, server, valid); err != nil {
		return nil, err
	}

	path := filepath.Join(c.cacheDir, song.ID)
	if song.Local {
		path = filepath.Join(c.localDir, song.ID)
	}
	volume := c.settings.Server(ctx, server).Volume / 100

	c.Stop(server)
	stream, err := c.gw.CreateStream(server, path, StreamOptions{
		Volume:  volume,
		Bitrate: streamBitrate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream for %s: %w", song.ID, err)
	}
	if err := stream.Start(); err != nil {
		stream.Stop()
		return nil, fmt.Errorf("failed to start stream for %s: %w", song.ID, err)
	}
	return stream, nil
}

// Adopt makes stream the server's stream, stopping any other.
func (c *Controller) Adopt(server snowflake.ID, stream Stream) {
	c.mu.Lock()
	old, ok := c.streams[server]
	c.streams[server] = stream
	delete(c.paused, server)
	c.mu.Unlock()
	if ok && old != stream {
		old.Stop()
	}
}

// Stop stops and discards the server's stream. It is a no-op when idle.
func (c *Controller) Stop(server snowflake.ID) {
	c.mu.Lock()
	stream, ok := c.streams[server]
	delete(c.streams, server)
	delete(c.paused, server)
	c.mu.Unlock()
	if ok {
		stream.Stop()
	}
}

func (c *Controller) Pause(server snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream, ok := c.streams[server]
	if !ok || !stream.IsPlaying() {
		return false
	}
	stream.Pause()
	c.paused[server] = true
	return true
}

// Resume restarts a paused stream. Finished streams stay finished.
func (c *Controller) Resume(server snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream, ok := c.streams[server]
	if !ok || stream.IsPlaying() || stream.IsDone() {
		return false
	}
	stream.Resume()
	delete(c.paused, server)
	return true
}

// IsPlaying reports whether the server has a stream that has not finished.
// A paused stream counts as playing.
func (c *Controller) IsPlaying(server snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream, ok := c.streams[server]
	return ok && !stream.IsDone()
}

// Active reports whether audio is flowing right now.
func (c *Controller) Active(server snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stream, ok := c.streams[server]
	return ok && stream.IsPlaying()
}

func (c *Controller) Connected(server snowflake.ID) bool {
	_, ok := c.gw.ConnectedChannel(server)
	return ok
}

func (c *Controller) State(server snowflake.ID) PlaybackState {
	c.mu.Lock()
	connecting := c.connecting[server]
	stream, hasStream := c.streams[server]
	paused := c.paused[server]
	c.mu.Unlock()

	switch {
	case connecting:
		return StateConnecting
	case !c.Connected(server):
		return StateDisconnected
	case hasStream && !stream.IsDone() && paused:
		return StatePaused
	case hasStream && !stream.IsDone():
		return StatePlaying
	default:
		return StateConnected
	}
}

// Disconnect stops the stream, then leaves voice.
func (c *Controller) Disconnect(ctx context.Context, server snowflake.ID) error {
	c.Stop(server)
	if !c.Connected(server) {
		return nil
	}
	return c.gw.Disconnect(ctx, server)
}

// ConnectedServers lists the servers with a live connection among known.
func (c *Controller) ConnectedServers(known []snowflake.ID) []snowflake.ID {
	var out []snowflake.ID
	for _, id := range known {
		if c.Connected(id) {
			out = append(out, id)
		}
	}
	return out
}

func (c *Controller) StopAll() {
	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[snowflake.ID]Stream)
	c.paused = make(map[snowflake.ID]bool)
	c.mu.Unlock()
	for _, s := range streams {
		s.Stop()
	}
}
