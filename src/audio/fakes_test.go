package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// fakeProvider resolves from in-memory tables and writes size bytes per
// download.
type fakeProvider struct {
	mu        sync.Mutex
	songs     map[string]Song
	search    map[string]string
	playlists map[string][]string
	infoCalls int
	downloads map[string]int
	// gate blocks Info until closed when set.
	gate chan struct{}
	size int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		songs:     make(map[string]Song),
		search:    make(map[string]string),
		playlists: make(map[string][]string),
		downloads: make(map[string]int),
		size:      1024,
	}
}

func (f *fakeProvider) add(url string, s Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.songs[url] = s
}

func (f *fakeProvider) Search(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.search[query]
	if !ok {
		return "", errors.New("no results")
	}
	return id, nil
}

func (f *fakeProvider) Info(ctx context.Context, url string) (Song, error) {
	f.mu.Lock()
	f.infoCalls++
	gate := f.gate
	s, ok := f.songs[url]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Song{}, ctx.Err()
		}
	}
	if !ok {
		return Song{}, errors.New("video unavailable")
	}
	return s, nil
}

func (f *fakeProvider) Download(_ context.Context, song Song, dest string) error {
	f.mu.Lock()
	f.downloads[song.ID]++
	size := f.size
	f.mu.Unlock()
	return os.WriteFile(dest, make([]byte, size), 0644)
}

func (f *fakeProvider) Playlist(_ context.Context, url string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.playlists[url]
	if !ok {
		return nil, errors.New("playlist does not exist")
	}
	return entries, nil
}

func (f *fakeProvider) infoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls
}

func (f *fakeProvider) downloadCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[id]
}

func (f *fakeProvider) totalDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.downloads {
		n += c
	}
	return n
}

type fakeStream struct {
	mu      sync.Mutex
	path    string
	opts    StreamOptions
	started bool
	playing bool
	done    bool
	stopped bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started, s.playing = true, true
	return nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped, s.playing, s.done = true, false, true
}

func (s *fakeStream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *fakeStream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.playing = true
	}
}

func (s *fakeStream) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeStream) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// finish simulates the song running out.
func (s *fakeStream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing, s.done = false, true
}

type fakeGateway struct {
	mu        sync.Mutex
	connected map[snowflake.ID]snowflake.ID
	joins     int
	joinErr   error
	joinBlock bool
	streams   []*fakeStream
	// onCreate runs once, before the next stream is created.
	onCreate func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{connected: make(map[snowflake.ID]snowflake.ID)}
}

func (g *fakeGateway) Join(ctx context.Context, guild, channel snowflake.ID) error {
	g.mu.Lock()
	block, err := g.joinBlock, g.joinErr
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected[guild] = channel
	g.joins++
	return nil
}

func (g *fakeGateway) Disconnect(_ context.Context, guild snowflake.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connected, guild)
	return nil
}

func (g *fakeGateway) ConnectedChannel(guild snowflake.ID) (snowflake.ID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.connected[guild]
	return id, ok
}

func (g *fakeGateway) CreateStream(_ snowflake.ID, path string, opts StreamOptions) (Stream, error) {
	g.mu.Lock()
	hook := g.onCreate
	g.onCreate = nil
	g.mu.Unlock()
	if hook != nil {
		hook()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	s := &fakeStream{path: path, opts: opts}
	g.streams = append(g.streams, s)
	return s, nil
}

func (g *fakeGateway) lastStream() *fakeStream {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.streams) == 0 {
		return nil
	}
	return g.streams[len(g.streams)-1]
}

func (g *fakeGateway) streamCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.streams)
}

type memPlaylists struct {
	mu    sync.Mutex
	lists map[string]Playlist
}

func newMemPlaylists() *memPlaylists {
	return &memPlaylists{lists: make(map[string]Playlist)}
}

func playlistKey(guild snowflake.ID, name string) string {
	return fmt.Sprintf("%s/%s", guild, name)
}

func (m *memPlaylists) SavePlaylist(_ context.Context, p Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[playlistKey(p.GuildID, p.Name)] = p
	return nil
}

func (m *memPlaylists) GetPlaylist(_ context.Context, guild snowflake.ID, name string) (Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.lists[playlistKey(guild, name)]
	if !ok {
		return Playlist{}, ErrPlaylistNotFound
	}
	return p, nil
}

func (m *memPlaylists) DeletePlaylist(_ context.Context, guild snowflake.ID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, playlistKey(guild, name))
	return nil
}

func (m *memPlaylists) ListPlaylists(_ context.Context, guild snowflake.ID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, p := range m.lists {
		if p.GuildID == guild {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type memSettings struct {
	mu    sync.Mutex
	s     Settings
	saves int
}

func (m *memSettings) LoadSettings(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.clone(), nil
}

func (m *memSettings) SaveSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s.clone()
	m.saves++
	return nil
}
