package audio

import (
	"math/rand"
	"slices"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// serverQueue is one server's playback state. Its fields are only touched
// with the registry lock held.
type serverQueue struct {
	main       []string
	temp       []string
	nowPlaying *Song
	// requeue is set when nowPlaying came from the main queue and has not
	// been put back yet.
	requeue        bool
	repeat         bool
	playlist       string
	voiceChannelID snowflake.ID
}

// QueueSnapshot is an immutable copy of a server's queue state.
type QueueSnapshot struct {
	ServerID       snowflake.ID
	Main           []string
	Temp           []string
	NowPlaying     *Song
	Repeat         bool
	Playlist       string
	VoiceChannelID snowflake.ID
}

// Len is the number of queued locators in both queues.
func (s QueueSnapshot) Len() int { return len(s.Main) + len(s.Temp) }

// Queues is the registry of per-server queues. Entries are created on first
// write and removed by Reset or Remove.
type Queues struct {
	mu      sync.Mutex
	servers map[snowflake.ID]*serverQueue
}

func NewQueues() *Queues {
	return &Queues{servers: make(map[snowflake.ID]*serverQueue)}
}

func (q *Queues) getLocked(server snowflake.ID) *serverQueue {
	s, ok := q.servers[server]
	if !ok {
		s = &serverQueue{}
		q.servers[server] = s
	}
	return s
}

func (q *Queues) update(server snowflake.ID, fn func(*serverQueue)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(q.getLocked(server))
}

func (q *Queues) Enqueue(server snowflake.ID, locators ...string) {
	q.update(server, func(s *serverQueue) { s.main = append(s.main, locators...) })
}

// EnqueuePriority appends to the temp queue, which is drained before the main
// queue.
func (q *Queues) EnqueuePriority(server snowflake.ID, locators ...string) {
	q.update(server, func(s *serverQueue) { s.temp = append(s.temp, locators...) })
}

// EnqueueFront puts locator at the head of the main queue.
func (q *Queues) EnqueueFront(server snowflake.ID, locator string) {
	q.update(server, func(s *serverQueue) { s.main = append([]string{locator}, s.main...) })
}

// SetQueue replaces the main queue.
func (q *Queues) SetQueue(server snowflake.ID, locators []string) {
	q.update(server, func(s *serverQueue) { s.main = slices.Clone(locators) })
}

// Clear empties both queues. Repeat and playlist survive.
func (q *Queues) Clear(server snowflake.ID) {
	q.update(server, func(s *serverQueue) {
		s.main = nil
		s.temp = nil
	})
}

func (q *Queues) SetRepeat(server snowflake.ID, repeat bool) {
	q.update(server, func(s *serverQueue) { s.repeat = repeat })
}

func (q *Queues) SetPlaylist(server snowflake.ID, name string) {
	q.update(server, func(s *serverQueue) { s.playlist = name })
}

// SetNowPlaying records song as playing. fromMain marks it for the repeat
// requeue. A nil song clears the slot and any pending requeue.
func (q *Queues) SetNowPlaying(server snowflake.ID, song *Song, fromMain bool) {
	q.update(server, func(s *serverQueue) {
		if song == nil {
			s.nowPlaying = nil
			s.requeue = false
			return
		}
		cp := *song
		s.nowPlaying = &cp
		s.requeue = fromMain
	})
}

func (q *Queues) SetVoiceChannel(server, channel snowflake.ID) {
	q.update(server, func(s *serverQueue) { s.voiceChannelID = channel })
}

func (q *Queues) VoiceChannel(server snowflake.ID) (snowflake.ID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok || s.voiceChannelID == 0 {
		return 0, false
	}
	return s.voiceChannelID, true
}

func (q *Queues) NowPlaying(server snowflake.ID) (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok || s.nowPlaying == nil {
		return Song{}, false
	}
	return *s.nowPlaying, true
}

// Peek returns the head of the main queue without removing it.
func (q *Queues) Peek(server snowflake.ID) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok || len(s.main) == 0 {
		return "", false
	}
	return s.main[0], true
}

// PeekLeft returns the head of the temp queue without removing it.
func (q *Queues) PeekLeft(server snowflake.ID) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok || len(s.temp) == 0 {
		return "", false
	}
	return s.temp[0], true
}

// PeekNext returns what PopNext would return.
func (q *Queues) PeekNext(server snowflake.ID) (string, bool) {
	if l, ok := q.PeekLeft(server); ok {
		return l, true
	}
	return q.Peek(server)
}

// RequeueFinished appends the now playing song to the main tail when repeat
// is on and the song came from the main queue. It fires at most once per
// song.
func (q *Queues) RequeueFinished(server snowflake.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok || !s.requeue || s.nowPlaying == nil {
		return false
	}
	s.requeue = false
	if !s.repeat {
		return false
	}
	s.main = append(s.main, s.nowPlaying.Requeue())
	return true
}

// PopNext removes and returns the next locator, temp queue first. fromMain
// reports which queue it came from.
func (q *Queues) PopNext(server snowflake.ID) (locator string, fromMain bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, exists := q.servers[server]
	if !exists {
		return "", false, false
	}
	if len(s.temp) > 0 {
		locator, s.temp = s.temp[0], s.temp[1:]
		return locator, false, true
	}
	if len(s.main) > 0 {
		locator, s.main = s.main[0], s.main[1:]
		return locator, true, true
	}
	return "", false, false
}

func (q *Queues) Shuffle(server snowflake.ID) {
	q.update(server, func(s *serverQueue) {
		rand.Shuffle(len(s.main), func(i, j int) { s.main[i], s.main[j] = s.main[j], s.main[i] })
	})
}

// Pending reports whether the server has something to advance to.
func (q *Queues) Pending(server snowflake.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	return ok && s.pendingLocked()
}

func (s *serverQueue) pendingLocked() bool {
	return len(s.main) > 0 || len(s.temp) > 0 || (s.requeue && s.repeat)
}

// PendingServers lists the servers with work queued.
func (q *Queues) PendingServers() []snowflake.ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []snowflake.ID
	for id, s := range q.servers {
		if s.pendingLocked() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (q *Queues) Snapshot(server snowflake.ID) QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok {
		return QueueSnapshot{ServerID: server}
	}
	return s.snapshot(server)
}

func (q *Queues) Snapshots() []QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueueSnapshot, 0, len(q.servers))
	for id, s := range q.servers {
		out = append(out, s.snapshot(id))
	}
	return out
}

func (s *serverQueue) snapshot(id snowflake.ID) QueueSnapshot {
	snap := QueueSnapshot{
		ServerID:       id,
		Main:           slices.Clone(s.main),
		Temp:           slices.Clone(s.temp),
		Repeat:         s.repeat,
		Playlist:       s.playlist,
		VoiceChannelID: s.voiceChannelID,
	}
	if s.nowPlaying != nil {
		cp := *s.nowPlaying
		snap.NowPlaying = &cp
	}
	return snap
}

// NowPlayingIDs returns the id of every server's now playing song.
func (q *Queues) NowPlayingIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for _, s := range q.servers {
		if s.nowPlaying != nil && !s.nowPlaying.Local {
			ids = append(ids, s.nowPlaying.ID)
		}
	}
	return ids
}

// Reset drops everything but the voice channel.
func (q *Queues) Reset(server snowflake.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.servers[server]
	if !ok {
		return
	}
	q.servers[server] = &serverQueue{voiceChannelID: s.voiceChannelID}
}

// Remove forgets the server entirely.
func (q *Queues) Remove(server snowflake.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.servers, server)
}

// Has reports whether the server has queue state.
func (q *Queues) Has(server snowflake.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.servers[server]
	return ok
}

// ServerIDs lists every server with queue state.
func (q *Queues) ServerIDs() []snowflake.ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]snowflake.ID, 0, len(q.servers))
	for id := range q.servers {
		ids = append(ids, id)
	}
	return ids
}

func (q *Queues) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.servers)
}
