package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServer = snowflake.ID(1001)

func newTestCoordinator(t *testing.T, opts CoordinatorOptions) (*Coordinator, *fakeProvider, *Cache) {
	t.Helper()
	f, p, cache, _ := newTestFetcher(t)
	c := NewCoordinator(f, opts)
	t.Cleanup(c.Close)
	return c, p, cache
}

func TestCoordinator_EnsureReadyIsIdempotent(t *testing.T) {
	c, p, cache := newTestCoordinator(t, CoordinatorOptions{})
	url := "https://www.youtube.com/watch?v=a"
	p.add(url, Song{ID: "a", Title: "A", Duration: time.Minute})
	gate := make(chan struct{})
	p.gate = gate

	const callers = 5
	var wg sync.WaitGroup
	songs := make([]Song, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			songs[i], errs[i] = c.EnsureReady(context.Background(), testServer, url, 0)
		}()
	}

	require.Eventually(t, func() bool { return c.Current(testServer) != nil }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "a", songs[i].ID)
	}
	assert.Equal(t, 1, p.downloadCount("a"))
	assert.True(t, cache.Has("a"))
	assert.False(t, c.CurrentlyDownloading(testServer))
}

func TestCoordinator_StaleResultIsDiscarded(t *testing.T) {
	c, p, _ := newTestCoordinator(t, CoordinatorOptions{})
	urlA := "https://www.youtube.com/watch?v=a"
	urlB := "https://www.youtube.com/watch?v=b"
	p.add(urlA, Song{ID: "a"})
	p.add(urlB, Song{ID: "b"})
	gate := make(chan struct{})
	p.gate = gate

	type result struct {
		song Song
		err  error
	}
	resA := make(chan result, 1)
	go func() {
		s, err := c.EnsureReady(context.Background(), testServer, urlA, 0)
		resA <- result{s, err}
	}()
	require.Eventually(t, func() bool {
		cur := c.Current(testServer)
		return cur != nil && cur.Locator == urlA
	}, time.Second, 5*time.Millisecond)

	resB := make(chan result, 1)
	go func() {
		s, err := c.EnsureReady(context.Background(), testServer, urlB, 0)
		resB <- result{s, err}
	}()
	require.Eventually(t, func() bool { return c.Current(testServer).Locator == urlB }, time.Second, 5*time.Millisecond)
	assert.True(t, c.CurrentlyDownloading(testServer))
	close(gate)

	a := <-resA
	assert.ErrorIs(t, a.err, ErrSuperseded)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "b", b.song.ID)
}

func TestCoordinator_LengthExceededIsNeverCached(t *testing.T) {
	c, p, cache := newTestCoordinator(t, CoordinatorOptions{})
	url := "https://www.youtube.com/watch?v=long"
	p.add(url, Song{ID: "long", Duration: 500 * time.Second})

	_, err := c.EnsureReady(context.Background(), testServer, url, 100*time.Second)
	assert.ErrorIs(t, err, ErrMaximumLength)
	assert.Equal(t, TaskLengthExceeded, c.Current(testServer).State())
	assert.Equal(t, 0, p.totalDownloads())
	assert.False(t, cache.Has("long"))
}

func TestCoordinator_StopSupersedes(t *testing.T) {
	c, p, _ := newTestCoordinator(t, CoordinatorOptions{})
	url := "https://www.youtube.com/watch?v=a"
	p.add(url, Song{ID: "a"})
	gate := make(chan struct{})
	p.gate = gate

	errCh := make(chan error, 1)
	go func() {
		_, err := c.EnsureReady(context.Background(), testServer, url, 0)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return c.Current(testServer) != nil }, time.Second, 5*time.Millisecond)
	c.Stop(testServer)
	assert.False(t, c.CurrentlyDownloading(testServer))
	close(gate)

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
}

func TestCoordinator_PrefetchStartsDownload(t *testing.T) {
	c, p, cache := newTestCoordinator(t, CoordinatorOptions{})
	urlA := "https://www.youtube.com/watch?v=a"
	urlB := "https://www.youtube.com/watch?v=b"
	p.add(urlA, Song{ID: "a"})
	p.add(urlB, Song{ID: "b", Title: "B", Duration: time.Minute})

	_, err := c.EnsureReady(context.Background(), testServer, urlA, 0)
	require.NoError(t, err)

	song, ok := c.Prefetch(context.Background(), testServer, urlB, 10*time.Minute)
	require.True(t, ok)
	assert.Equal(t, "b", song.ID)
	assert.Equal(t, urlB, c.Current(testServer).Locator)
	require.Eventually(t, func() bool { return cache.Has("b") }, time.Second, 5*time.Millisecond)

	// The next advance reuses the prefetched task.
	got, err := c.EnsureReady(context.Background(), testServer, urlB, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, 1, p.downloadCount("b"))

	_, ok = c.Prefetch(context.Background(), testServer, urlB, 10*time.Minute)
	assert.False(t, ok)
}

func TestCoordinator_ResolvesEachSongOnce(t *testing.T) {
	c, p, cache := newTestCoordinator(t, CoordinatorOptions{})
	urlA := "https://www.youtube.com/watch?v=a"
	urlB := "https://www.youtube.com/watch?v=b"
	p.add(urlA, Song{ID: "a"})
	p.add(urlB, Song{ID: "b"})

	_, err := c.EnsureReady(context.Background(), testServer, urlA, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.infoCount())

	_, ok := c.Prefetch(context.Background(), testServer, urlB, 0)
	require.True(t, ok)
	require.Eventually(t, func() bool { return cache.Has("b") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, p.infoCount())

	song, ok := c.Current(testServer).Song()
	require.True(t, ok)
	assert.Equal(t, "b", song.ID)
}

func TestTask_SeededTaskSkipsMetadata(t *testing.T) {
	f, p, cache, _ := newTestFetcher(t)
	task := newTaskFor("https://www.youtube.com/watch?v=a", 0, Song{ID: "a", Title: "A"})

	song, err := task.WaitMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", song.Title)

	task.Run(context.Background(), f)
	assert.Equal(t, TaskReady, task.State())
	assert.Zero(t, p.infoCount())
	assert.Equal(t, 1, p.downloadCount("a"))
	assert.True(t, cache.Has("a"))
}

func TestCoordinator_PrefetchSkipsSameSong(t *testing.T) {
	c, p, _ := newTestCoordinator(t, CoordinatorOptions{})
	urlA := "https://www.youtube.com/watch?v=a"
	alias := "https://youtu.be/a"
	p.add(urlA, Song{ID: "a"})
	p.add(alias, Song{ID: "a"})

	_, err := c.EnsureReady(context.Background(), testServer, urlA, 0)
	require.NoError(t, err)

	_, ok := c.Prefetch(context.Background(), testServer, alias, 0)
	assert.False(t, ok)
	assert.Equal(t, urlA, c.Current(testServer).Locator)
	assert.Equal(t, 1, p.downloadCount("a"))
}

func TestCoordinator_PrefetchAbandonsLongSongs(t *testing.T) {
	c, p, cache := newTestCoordinator(t, CoordinatorOptions{})
	urlA := "https://www.youtube.com/watch?v=a"
	urlB := "https://www.youtube.com/watch?v=long"
	p.add(urlA, Song{ID: "a"})
	p.add(urlB, Song{ID: "long", Duration: 500 * time.Second})

	_, err := c.EnsureReady(context.Background(), testServer, urlA, 100*time.Second)
	require.NoError(t, err)

	_, ok := c.Prefetch(context.Background(), testServer, urlB, 100*time.Second)
	assert.False(t, ok)
	assert.Equal(t, urlA, c.Current(testServer).Locator)
	assert.False(t, cache.Has("long"))
}

func TestCoordinator_PrefetchTimeout(t *testing.T) {
	c, p, _ := newTestCoordinator(t, CoordinatorOptions{PrefetchTimeout: 20 * time.Millisecond})
	urlA := "https://www.youtube.com/watch?v=a"
	urlB := "https://www.youtube.com/watch?v=b"
	p.add(urlA, Song{ID: "a"})
	p.add(urlB, Song{ID: "b"})

	_, err := c.EnsureReady(context.Background(), testServer, urlA, 0)
	require.NoError(t, err)

	gate := make(chan struct{})
	p.mu.Lock()
	p.gate = gate
	p.mu.Unlock()
	defer close(gate)

	start := time.Now()
	_, ok := c.Prefetch(context.Background(), testServer, urlB, 0)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, urlA, c.Current(testServer).Locator)
}

func TestCoordinator_DesiredIDs(t *testing.T) {
	c, p, _ := newTestCoordinator(t, CoordinatorOptions{})
	url := "https://www.youtube.com/watch?v=a"
	p.add(url, Song{ID: "a"})

	assert.Empty(t, c.DesiredIDs())
	_, err := c.EnsureReady(context.Background(), testServer, url, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.DesiredIDs())

	c.Stop(testServer)
	require.Eventually(t, func() bool { return len(c.DesiredIDs()) == 0 }, time.Second, 5*time.Millisecond)
}
