package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsage struct {
	required []string
	desired  []string
	servers  int
}

func (u fakeUsage) RequiredIDs() []string { return u.required }
func (u fakeUsage) DesiredIDs() []string  { return u.desired }
func (u fakeUsage) ServerCount() int      { return u.servers }

func writeCacheFile(t *testing.T, c *Cache, name string, size int64) {
	t.Helper()
	path := filepath.Join(c.Dir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func TestCacheMinMB(t *testing.T) {
	assert.Equal(t, 60.0, CacheMinMB(0))
	assert.Equal(t, 60.0, CacheMinMB(1))
	assert.Equal(t, 60.0, CacheMinMB(2))
	assert.InDelta(t, 2633.6, CacheMinMB(1000), 1)
}

func TestCache_MaxMB(t *testing.T) {
	c := NewCache(t.TempDir(), func() int { return 500 }, nil)
	assert.Equal(t, 500.0, c.MaxMB())

	c = NewCache(t.TempDir(), func() int { return 10 }, nil)
	assert.Equal(t, 60.0, c.MaxMB())
}

func TestCache_SweepKeepsRequiredAndDesired(t *testing.T) {
	c := NewCache(t.TempDir(), nil, nil)
	c.SetUsage(fakeUsage{required: []string{"a"}, desired: []string{"c"}, servers: 1})
	writeCacheFile(t, c, "a", 10)
	writeCacheFile(t, c, "b", 20)
	writeCacheFile(t, c, "c"+partSuffix, 30)

	assert.Equal(t, int64(20), c.Sweep(false))
	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"))
	assert.FileExists(t, c.Path("c")+partSuffix)

	assert.Equal(t, int64(30), c.Sweep(true))
	assert.True(t, c.Has("a"))
	assert.NoFileExists(t, c.Path("c")+partSuffix)
}

func TestCache_SweepEvictsDesiredWhenStillTooLarge(t *testing.T) {
	c := NewCache(t.TempDir(), nil, nil)
	c.SetUsage(fakeUsage{required: []string{"playing"}, desired: []string{"next"}, servers: 1})
	writeCacheFile(t, c, "playing", 70_000_000)
	writeCacheFile(t, c, "next", 5_000_000)
	writeCacheFile(t, c, "old", 1_000_000)
	require.True(t, c.TooLarge())

	assert.Equal(t, int64(6_000_000), c.Sweep(false))
	assert.True(t, c.Has("playing"))
	assert.False(t, c.Has("next"))
	assert.False(t, c.Has("old"))
}

func TestCache_MissingDir(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), nil, nil)
	assert.Zero(t, c.SizeBytes())
	assert.Zero(t, c.Sweep(false))
	assert.False(t, c.TooLarge())

	require.NoError(t, c.Ensure())
	assert.DirExists(t, c.Dir())
}
