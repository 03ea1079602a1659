package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// HornURL is the clip played by the horn command.
const HornURL = "https://www.youtube.com/watch?v=a_6CZ2JaEuc"

type Options struct {
	CacheDir        string
	LocalDir        string
	PrefetchTimeout time.Duration
	ConnectTimeout  time.Duration
	// Limiter paces download task starts.
	Limiter *rate.Limiter
	// ServerCount reports how many servers the bot is in. It sizes the
	// cache floor.
	ServerCount func() int
	Status      StatusSetter
	Logger      *slog.Logger
	// CacheLogger and DownloadLogger default to Logger.
	CacheLogger    *slog.Logger
	DownloadLogger *slog.Logger

	QueueInterval time.Duration
	IdleInterval  time.Duration
	IdleTimeout   time.Duration
	CacheGrace    time.Duration
	CacheInterval time.Duration
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.CacheLogger == nil {
		o.CacheLogger = o.Logger
	}
	if o.DownloadLogger == nil {
		o.DownloadLogger = o.Logger
	}
	if o.QueueInterval <= 0 {
		o.QueueInterval = time.Second
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 300 * time.Second
	}
	if o.CacheGrace <= 0 {
		o.CacheGrace = 30 * time.Second
	}
	if o.CacheInterval <= 0 {
		o.CacheInterval = 5 * time.Second
	}
}

// PlayResult tells the caller what Play did with the request.
type PlayResult int

const (
	PlayStarted PlayResult = iota
	PlayQueued
)

// Player is the audio subsystem seen by the rest of the bot.
type Player struct {
	opts      Options
	logger    *slog.Logger
	settings  *SettingsManager
	playlists PlaylistStore

	cache   *Cache
	fetcher *Fetcher
	coord   *Coordinator
	queues  *Queues
	ctrl    *Controller

	sleepMu sync.Mutex
	sleeps  map[snowflake.ID]*time.Timer

	// genMu orders queue resets against songs being started. A reset bumps
	// the server's generation; a start commits only under the generation it
	// popped its song with.
	genMu sync.Mutex
	gens  map[snowflake.ID]uint64

	closed atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPlayer(provider Provider, gw VoiceGateway, settings *SettingsManager, playlists PlaylistStore, opts Options) *Player {
	opts.defaults()
	p := &Player{
		opts:      opts,
		logger:    opts.Logger,
		settings:  settings,
		playlists: playlists,
		queues:    NewQueues(),
		sleeps:    make(map[snowflake.ID]*time.Timer),
		gens:      make(map[snowflake.ID]uint64),
	}
	p.cache = NewCache(opts.CacheDir, settings.MaxCacheMB, opts.CacheLogger)
	p.cache.SetUsage(p)
	p.fetcher = NewFetcher(provider, p.cache, opts.LocalDir, opts.DownloadLogger)
	p.coord = NewCoordinator(p.fetcher, CoordinatorOptions{
		PrefetchTimeout: opts.PrefetchTimeout,
		Limiter:         opts.Limiter,
		Logger:          opts.DownloadLogger,
	})
	p.ctrl = NewController(gw, p.queues, settings, ControllerOptions{
		CacheDir:       opts.CacheDir,
		LocalDir:       opts.LocalDir,
		ConnectTimeout: opts.ConnectTimeout,
		Logger:         opts.Logger,
	})
	return p
}

// Prepare creates the data directories.
func (p *Player) Prepare() error {
	if err := p.cache.Ensure(); err != nil {
		return err
	}
	if p.opts.LocalDir != "" {
		return os.MkdirAll(p.opts.LocalDir, 0755)
	}
	return nil
}

func (p *Player) Cache() *Cache { return p.cache }

func (p *Player) Fetcher() *Fetcher { return p.fetcher }

func (p *Player) Settings() *SettingsManager { return p.settings }

// RequiredIDs implements CacheUsage.
func (p *Player) RequiredIDs() []string { return p.queues.NowPlayingIDs() }

// DesiredIDs implements CacheUsage.
func (p *Player) DesiredIDs() []string { return p.coord.DesiredIDs() }

// ServerCount implements CacheUsage.
func (p *Player) ServerCount() int {
	if p.opts.ServerCount != nil {
		return max(1, p.opts.ServerCount())
	}
	return max(1, p.queues.Len())
}

func (p *Player) maxDuration() time.Duration {
	return p.settings.Get().MaxDuration()
}

// joinChannel connects to channel, leaving first when connected elsewhere
// in the server.
func (p *Player) joinChannel(ctx context.Context, server, channel snowflake.ID) error {
	if live, ok := p.ctrl.gw.ConnectedChannel(server); ok {
		if live == channel {
			p.queues.SetVoiceChannel(server, channel)
			return nil
		}
		if err := p.StopAndDisconnect(ctx, server); err != nil {
			p.logger.Warn(fmt.Sprintf(msgLeaveChannelFail, live, server, err))
		}
	}
	return p.ctrl.Connect(ctx, server, channel)
}

// Play starts input in channel, replacing the queue. When something is
// already playing the input is queued instead.
func (p *Player) Play(ctx context.Context, server, channel snowflake.ID, input string) (PlayResult, error) {
	if p.IsPlaying(server) {
		_, err := p.Queue(ctx, server, channel, input)
		return PlayQueued, err
	}
	locator, err := NormalizeLocator(input)
	if err != nil {
		return PlayStarted, err
	}
	if err := p.joinChannel(ctx, server, channel); err != nil {
		return PlayStarted, err
	}
	if p.CurrentlyDownloading(server) {
		return PlayStarted, ErrAlreadyDownloading
	}

	if IsPlaylist(locator) {
		urls, err := p.fetcher.ExpandPlaylist(ctx, locator)
		if err != nil {
			return PlayStarted, err
		}
		p.supersede(server, func() {
			p.ctrl.Stop(server)
			p.queues.SetQueue(server, urls)
		})
		return PlayStarted, nil
	}

	p.supersede(server, func() {
		p.ctrl.Stop(server)
		p.queues.Clear(server)
		p.queues.Enqueue(server, locator)
	})
	return PlayStarted, nil
}

// Queue appends input to the server's queue and returns how many items were
// added. While a saved playlist plays, items go to the temp queue so they
// play before the playlist continues.
func (p *Player) Queue(ctx context.Context, server, channel snowflake.ID, input string) (int, error) {
	locator, err := NormalizeLocator(input)
	if err != nil {
		return 0, err
	}
	if !p.ctrl.Connected(server) {
		if err := p.joinChannel(ctx, server, channel); err != nil {
			return 0, err
		}
	}

	urls := []string{locator}
	if IsPlaylist(locator) {
		if urls, err = p.fetcher.ExpandPlaylist(ctx, locator); err != nil {
			return 0, err
		}
	}
	if p.queues.Snapshot(server).Playlist != "" {
		p.queues.EnqueuePriority(server, urls...)
	} else {
		p.queues.Enqueue(server, urls...)
	}
	return len(urls), nil
}

// PlayPlaylist replaces the queue with urls and turns repeat on.
func (p *Player) PlayPlaylist(server snowflake.ID, name string, urls []string) {
	p.logger.Debug(fmt.Sprintf(msgPlaylistSetup, name, server))
	p.supersede(server, func() {
		p.ctrl.Stop(server)
		p.coord.Stop(server)
		p.queues.Clear(server)
		p.queues.SetPlaylist(server, name)
		p.queues.SetRepeat(server, true)
		p.queues.SetQueue(server, urls)
	})
}

// PlayLocalPlaylist plays every file of a local playlist directory.
func (p *Player) PlayLocalPlaylist(ctx context.Context, server, channel snowflake.ID, name string) (int, error) {
	songs, err := p.fetcher.LocalPlaylist(name)
	if err != nil {
		return 0, err
	}
	if len(songs) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrPlaylistNotFound, name)
	}
	if err := p.joinChannel(ctx, server, channel); err != nil {
		return 0, err
	}
	p.PlayPlaylist(server, name, songs)
	return len(songs), nil
}

func (p *Player) LocalPlaylists() ([]string, error) {
	return p.fetcher.LocalPlaylists()
}

// SavePlaylist stores a playlist built from locator, or from the current
// queue when locator is empty. Only the author may overwrite a playlist
// unless override is set.
func (p *Player) SavePlaylist(ctx context.Context, server, author snowflake.ID, name, locator string, override bool) (Playlist, error) {
	if !ValidPlaylistName(name) {
		return Playlist{}, ErrInvalidPlaylistName
	}
	existing, err := p.playlists.GetPlaylist(ctx, server, name)
	switch {
	case err == nil:
		if !override && !existing.CanEdit(author) {
			return Playlist{}, ErrUnauthorizedSave
		}
	case !errors.Is(err, ErrPlaylistNotFound):
		return Playlist{}, err
	}

	var urls []string
	if locator != "" {
		if urls, err = p.fetcher.ExpandPlaylist(ctx, locator); err != nil {
			return Playlist{}, err
		}
	} else {
		snap := p.queues.Snapshot(server)
		if snap.NowPlaying != nil {
			urls = append(urls, snap.NowPlaying.Requeue())
		}
		urls = append(urls, snap.Temp...)
		urls = append(urls, snap.Main...)
	}
	if len(urls) == 0 {
		return Playlist{}, fmt.Errorf("%w: nothing to save", ErrInvalidPlaylist)
	}

	pl := Playlist{GuildID: server, Name: name, AuthorID: author, URLs: urls}
	if err := p.playlists.SavePlaylist(ctx, pl); err != nil {
		return Playlist{}, err
	}
	return pl, nil
}

func (p *Player) PlaySavedPlaylist(ctx context.Context, server, channel snowflake.ID, name string) (int, error) {
	pl, err := p.playlists.GetPlaylist(ctx, server, name)
	if err != nil {
		return 0, err
	}
	if err := p.joinChannel(ctx, server, channel); err != nil {
		return 0, err
	}
	p.PlayPlaylist(server, pl.Name, pl.URLs)
	return len(pl.URLs), nil
}

func (p *Player) DeletePlaylist(ctx context.Context, server, author snowflake.ID, name string, override bool) error {
	pl, err := p.playlists.GetPlaylist(ctx, server, name)
	if err != nil {
		return err
	}
	if !override && !pl.CanEdit(author) {
		return ErrUnauthorizedSave
	}
	return p.playlists.DeletePlaylist(ctx, server, name)
}

func (p *Player) Playlists(ctx context.Context, server snowflake.ID) ([]string, error) {
	return p.playlists.ListPlaylists(ctx, server)
}

// Skip ends the current song; the scheduler moves on at its next tick.
func (p *Player) Skip(server snowflake.ID) bool {
	if !p.ctrl.IsPlaying(server) {
		return false
	}
	p.ctrl.Stop(server)
	return true
}

func (p *Player) Pause(server snowflake.ID) bool { return p.ctrl.Pause(server) }

func (p *Player) Resume(server snowflake.ID) bool { return p.ctrl.Resume(server) }

func (p *Player) SetRepeat(server snowflake.ID, repeat bool) {
	p.queues.SetRepeat(server, repeat)
}

func (p *Player) Shuffle(server snowflake.ID) {
	p.queues.Shuffle(server)
}

func (p *Player) IsPlaying(server snowflake.ID) bool {
	return p.ctrl.IsPlaying(server)
}

func (p *Player) CurrentlyDownloading(server snowflake.ID) bool {
	return p.coord.CurrentlyDownloading(server)
}

func (p *Player) State(server snowflake.ID) PlaybackState {
	return p.ctrl.State(server)
}

func (p *Player) NowPlaying(server snowflake.ID) (Song, bool) {
	return p.queues.NowPlaying(server)
}

func (p *Player) Snapshot(server snowflake.ID) QueueSnapshot {
	return p.queues.Snapshot(server)
}

// Snapshots returns the queue state of every server with an entry.
func (p *Player) Snapshots() []QueueSnapshot {
	return p.queues.Snapshots()
}

// Stop resets the server: queue, stream and download task.
func (p *Player) Stop(server snowflake.ID) {
	p.supersede(server, func() {
		p.queues.Reset(server)
		p.ctrl.Stop(server)
		p.coord.Stop(server)
	})
}

// supersede runs fn as a new generation of the server. A song that was
// being started under an older generation is dropped instead of playing.
func (p *Player) supersede(server snowflake.ID, fn func()) {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	p.gens[server]++
	fn()
}

func (p *Player) generation(server snowflake.ID) uint64 {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	return p.gens[server]
}

// StopAndDisconnect stops everything and leaves voice.
func (p *Player) StopAndDisconnect(ctx context.Context, server snowflake.ID) error {
	p.CancelSleep(server)
	p.clearStatus(ctx, server)
	p.Stop(server)
	return p.ctrl.Disconnect(ctx, server)
}

// StopAt schedules StopAndDisconnect for at, replacing any earlier timer.
func (p *Player) StopAt(server snowflake.ID, at time.Time) {
	p.sleepMu.Lock()
	defer p.sleepMu.Unlock()
	if t, ok := p.sleeps[server]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(time.Until(at), func() {
		p.sleepMu.Lock()
		if p.sleeps[server] != timer {
			p.sleepMu.Unlock()
			return
		}
		delete(p.sleeps, server)
		p.sleepMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.logger.Info(fmt.Sprintf(msgSleepFired, server))
		if err := p.StopAndDisconnect(ctx, server); err != nil {
			p.logger.Warn(fmt.Sprintf(msgSleepDisconnectErr, server, err))
		}
	})
	p.sleeps[server] = timer
}

func (p *Player) CancelSleep(server snowflake.ID) bool {
	p.sleepMu.Lock()
	defer p.sleepMu.Unlock()
	t, ok := p.sleeps[server]
	if ok {
		t.Stop()
		delete(p.sleeps, server)
	}
	return ok
}

// VoiceMemberState is the part of the bot's own voice state the player
// reacts to.
type VoiceMemberState struct {
	ChannelID snowflake.ID
	Muted     bool
}

// OnVoiceStateUpdate follows the bot's own voice state. Moving updates the
// stored channel; muting pauses and unmuting resumes.
func (p *Player) OnVoiceStateUpdate(server snowflake.ID, before, after VoiceMemberState) {
	if !p.queues.Has(server) {
		return
	}
	if before.ChannelID != after.ChannelID && after.ChannelID != 0 {
		p.queues.SetVoiceChannel(server, after.ChannelID)
	}
	if before.Muted == after.Muted {
		return
	}
	if after.Muted {
		if p.ctrl.Pause(server) {
			p.logger.Debug(fmt.Sprintf(msgMutedPausing, server))
		}
		return
	}
	if p.ctrl.Resume(server) {
		p.logger.Debug(fmt.Sprintf(msgUnmutedResuming, server))
	}
}

func (p *Player) publishStatus(ctx context.Context, server snowflake.ID, song Song) {
	if p.opts.Status == nil || !p.settings.Get().TitleStatus {
		return
	}
	channel, ok := p.queues.VoiceChannel(server)
	if !ok {
		return
	}
	if err := p.opts.Status.SetVoiceStatus(ctx, channel, song.String()); err != nil {
		p.logger.Debug(fmt.Sprintf(msgVoiceStatusFail, channel, err))
	}
}

func (p *Player) clearStatus(ctx context.Context, server snowflake.ID) {
	if p.opts.Status == nil {
		return
	}
	if channel, ok := p.queues.VoiceChannel(server); ok {
		_ = p.opts.Status.SetVoiceStatus(ctx, channel, "")
	}
}
