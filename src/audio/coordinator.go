package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

const DefaultPrefetchTimeout = 30 * time.Second

// Coordinator owns the download tasks. Each server has at most one current
// task; superseded tasks keep running in the background and their results
// are discarded by identity checks.
type Coordinator struct {
	src             SongSource
	limiter         *rate.Limiter
	prefetchTimeout time.Duration
	logger          *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	current  map[snowflake.ID]*Task
	inflight map[*Task]struct{}
	probed   map[snowflake.ID]probe
}

// probe remembers the last prefetch attempt so a song that cannot be
// prefetched is not resolved again every tick.
type probe struct {
	task    *Task
	locator string
}

type CoordinatorOptions struct {
	PrefetchTimeout time.Duration
	// Limiter paces task starts. Nil means unlimited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

func NewCoordinator(src SongSource, opts CoordinatorOptions) *Coordinator {
	if opts.PrefetchTimeout <= 0 {
		opts.PrefetchTimeout = DefaultPrefetchTimeout
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		src:             src,
		limiter:         opts.Limiter,
		prefetchTimeout: opts.PrefetchTimeout,
		logger:          opts.Logger,
		ctx:             ctx,
		cancel:          cancel,
		current:         make(map[snowflake.ID]*Task),
		inflight:        make(map[*Task]struct{}),
		probed:          make(map[snowflake.ID]probe),
	}
}

// spawn starts t in the background. Tasks live as long as the coordinator,
// not the caller's context.
func (c *Coordinator) spawn(t *Task) {
	c.mu.Lock()
	c.inflight[t] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, t)
			c.mu.Unlock()
		}()
		if err := c.limiter.Wait(c.ctx); err != nil {
			t.fail(Song{}, err)
			return
		}
		t.Run(c.ctx, c.src)
	}()
}

// Current returns the server's current task.
func (c *Coordinator) Current(server snowflake.ID) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current[server]
}

// wanted reports whether the server's current task still targets locator.
// A task replaced by one for another locator, or dropped by Stop, is stale.
func (c *Coordinator) wanted(server snowflake.ID, locator string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.current[server]
	return t != nil && t.Locator == locator
}

// acquire returns the server's task for locator, replacing the current one
// when it targets something else or cannot provide a file.
func (c *Coordinator) acquire(server snowflake.ID, locator string, max time.Duration, wantsFile bool) *Task {
	c.mu.Lock()
	t := c.current[server]
	if t != nil && t.Locator == locator && t.MaxDuration == max && (t.WantsFile || !wantsFile) && t.State() != TaskFailed {
		c.mu.Unlock()
		return t
	}
	t = NewTask(locator, max, wantsFile)
	c.current[server] = t
	c.mu.Unlock()

	c.spawn(t)
	return t
}

// swap replaces old with next only if old is still the server's current
// task.
func (c *Coordinator) swap(server snowflake.ID, old, next *Task) bool {
	c.mu.Lock()
	if c.current[server] != old {
		c.mu.Unlock()
		return false
	}
	c.current[server] = next
	c.mu.Unlock()

	c.spawn(next)
	return true
}

// EnsureReady suspends until locator's metadata is known and, on a cache
// miss, its file has been downloaded. Concurrent callers for the same server
// and locator share one task.
func (c *Coordinator) EnsureReady(ctx context.Context, server snowflake.ID, locator string, max time.Duration) (Song, error) {
	t := c.acquire(server, locator, max, false)

	song, err := t.WaitMetadata(ctx)
	if err != nil {
		return song, err
	}
	if err := CheckLength(song, max); err != nil {
		return song, err
	}
	if !c.wanted(server, locator) {
		return song, ErrSuperseded
	}

	if !t.WantsFile {
		if song.Local || c.hasFile(song) {
			return song, nil
		}
		ft := newTaskFor(locator, max, song)
		if !c.swap(server, t, ft) {
			t = c.acquire(server, locator, max, true)
		} else {
			t = ft
		}
	}

	song, err = t.Wait(ctx)
	if err != nil {
		return song, err
	}
	if !c.wanted(server, locator) {
		return song, ErrSuperseded
	}
	return song, nil
}

func (c *Coordinator) hasFile(song Song) bool {
	if cc, ok := c.src.(interface{ Cached(Song) bool }); ok {
		return cc.Cached(song)
	}
	return false
}

// Prefetch primes the cache with next while the current song plays. It
// waits for next's metadata only and starts the real download when next is
// a different song that passes the length check.
func (c *Coordinator) Prefetch(ctx context.Context, server snowflake.ID, next string, max time.Duration) (Song, bool) {
	cur := c.Current(server)
	if cur == nil || cur.Locator == next {
		return Song{}, false
	}
	curSong, ok := cur.Song()
	if !ok {
		return Song{}, false
	}
	c.mu.Lock()
	last := c.probed[server]
	if last.task == cur && last.locator == next {
		c.mu.Unlock()
		return Song{}, false
	}
	c.probed[server] = probe{task: cur, locator: next}
	c.mu.Unlock()

	pt := NewTask(next, max, false)
	c.spawn(pt)

	ctx, cancel := context.WithTimeout(ctx, c.prefetchTimeout)
	defer cancel()
	song, err := pt.WaitMetadata(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn(fmt.Sprintf(msgPrefetchTimeout, next, c.prefetchTimeout))
		}
		return Song{}, false
	}
	if song.ID == curSong.ID {
		return Song{}, false
	}
	if CheckLength(song, max) != nil {
		return Song{}, false
	}
	if !c.swap(server, cur, newTaskFor(next, max, song)) {
		return Song{}, false
	}
	c.logger.Debug(fmt.Sprintf(msgPrefetching, song.ID, song.Title, server))
	return song, true
}

// CurrentlyDownloading reports whether the server's current task is still
// running.
func (c *Coordinator) CurrentlyDownloading(server snowflake.ID) bool {
	t := c.Current(server)
	return t != nil && !t.State().Terminal()
}

// Stop forgets the server's current task. The task itself runs to
// completion.
func (c *Coordinator) Stop(server snowflake.ID) {
	c.mu.Lock()
	delete(c.current, server)
	delete(c.probed, server)
	c.mu.Unlock()
}

// DesiredIDs returns the song ids of every current or in-flight task in
// random order.
func (c *Coordinator) DesiredIDs() []string {
	c.mu.Lock()
	tasks := make([]*Task, 0, len(c.current)+len(c.inflight))
	for _, t := range c.current {
		tasks = append(tasks, t)
	}
	for t := range c.inflight {
		tasks = append(tasks, t)
	}
	c.mu.Unlock()

	seen := make(map[string]struct{}, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if s, ok := t.Song(); ok && !s.Local {
			if _, dup := seen[s.ID]; !dup {
				seen[s.ID] = struct{}{}
				ids = append(ids, s.ID)
			}
		}
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// Close cancels every task and waits for them to exit.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}
