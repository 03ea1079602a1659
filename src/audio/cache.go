package audio

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	cacheFloorMB = 60
	partSuffix   = ".part"
)

// CacheUsage tells the cache which files are in use.
type CacheUsage interface {
	// RequiredIDs are the ids of every server's now playing song.
	RequiredIDs() []string
	// DesiredIDs are the ids of in-flight downloads.
	DesiredIDs() []string
	ServerCount() int
}

// Cache is the flat on-disk media cache shared by every server. Files are
// named by song id.
type Cache struct {
	dir    string
	maxMB  func() int
	usage  CacheUsage
	logger *slog.Logger
}

// NewCache returns a cache rooted at dir. maxMB reports the configured
// MAX_CACHE value; zero means the computed floor is used.
func NewCache(dir string, maxMB func() int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if maxMB == nil {
		maxMB = func() int { return 0 }
	}
	return &Cache{dir: dir, maxMB: maxMB, logger: logger}
}

// SetUsage wires the source of required and desired ids.
func (c *Cache) SetUsage(u CacheUsage) {
	c.usage = u
}

func (c *Cache) Dir() string { return c.dir }

func (c *Cache) Ensure() error {
	return os.MkdirAll(c.dir, 0755)
}

func (c *Cache) Path(id string) string {
	return filepath.Join(c.dir, id)
}

func (c *Cache) Has(id string) bool {
	info, err := os.Stat(c.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// SizeBytes is the total size of the regular files in the cache.
func (c *Cache) SizeBytes() int64 {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		total += info.Size()
	}
	return total
}

func (c *Cache) SizeMB() float64 {
	return float64(c.SizeBytes()) / 1e6
}

// MinMB grows sub-linearly with the number of servers so small deployments
// keep a sane floor.
func (c *Cache) MinMB() float64 {
	servers := 1
	if c.usage != nil {
		servers = c.usage.ServerCount()
	}
	return CacheMinMB(servers)
}

func CacheMinMB(servers int) float64 {
	x := float64(max(1, servers))
	return math.Max(cacheFloorMB, 48*math.Log(x)*math.Pow(x, 0.3))
}

func (c *Cache) MaxMB() float64 {
	return math.Max(float64(c.maxMB()), c.MinMB())
}

func (c *Cache) TooLarge() bool {
	return c.SizeMB() > c.MaxMB()
}

// Sweep deletes every cache file that is not required by a now playing song.
// Files of in-flight downloads survive unless forceEvictDesired is set. When
// the cache is still over budget after a normal pass the sweep repeats with
// desired files evicted. It returns the number of bytes reclaimed.
func (c *Cache) Sweep(forceEvictDesired bool) int64 {
	required := make(map[string]struct{})
	desired := make(map[string]struct{})
	if c.usage != nil {
		for _, id := range c.usage.RequiredIDs() {
			required[id] = struct{}{}
		}
		for _, id := range c.usage.DesiredIDs() {
			desired[id] = struct{}{}
		}
	}

	before := c.SizeBytes()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn(fmt.Sprintf(msgCacheListFail, c.dir, err))
		}
		return 0
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id := strings.TrimSuffix(e.Name(), partSuffix)
		if _, ok := required[id]; ok {
			continue
		}
		if _, ok := desired[id]; ok && !forceEvictDesired {
			continue
		}
		// The file may already be gone; losing that race is fine.
		_ = os.Remove(filepath.Join(c.dir, e.Name()))
	}
	reclaimed := max(0, before-c.SizeBytes())

	if !forceEvictDesired && c.TooLarge() {
		c.logger.Debug(msgCacheEvictAll)
		return reclaimed + c.Sweep(true)
	}
	c.logger.Debug(fmt.Sprintf(msgCacheDumped, humanize.Bytes(uint64(reclaimed))))
	return reclaimed
}
