package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Entry is one cached tool baseline.
type Entry struct {
	Key       string    `json:"key"`
	Label     string    `json:"label,omitempty"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	TTL       int       `json:"ttl"`
}

// Cache stores expensive tool output on disk, keyed by the inputs that
// produced it.
type Cache struct {
	dir        string
	ttlSeconds int
	enabled    bool
}

// New creates a new Cache. If dir is empty, uses the default cache directory.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(d, "baselines")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:        dir,
		ttlSeconds: ttlSeconds,
		enabled:    true,
	}, nil
}

// Get returns the cached value for key. Returns ("", false) on miss.
func (c *Cache) Get(key string) (string, bool) {
	if c == nil || !c.enabled {
		return "", false
	}
	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", false
	}
	if c.expired(entry) {
		os.Remove(path)
		return "", false
	}
	return entry.Value, true
}

// Put stores value under key. label is kept for humans inspecting the
// directory. Writes go through a temp file so concurrent readers never see
// a partial entry.
func (c *Cache) Put(key, label, value string) error {
	if c == nil || !c.enabled {
		return nil
	}
	entry := Entry{
		Key:       HashKey(key),
		Label:     label,
		Value:     value,
		CreatedAt: time.Now(),
		TTL:       c.ttlSeconds,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// walk calls fn for every entry file in the cache directory. e is nil when
// the file could not be decoded.
func (c *Cache) walk(fn func(path string, size int64, e *Entry)) error {
	if c == nil || !c.enabled || c.dir == "" {
		return nil
	}
	files, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(c.dir, f.Name())
		var entry *Entry
		if data, err := os.ReadFile(path); err == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				entry = &e
			}
		}
		fn(path, info.Size(), entry)
	}
	return nil
}

// Clear removes every entry and returns how many files went away.
func (c *Cache) Clear() (int, error) {
	removed := 0
	err := c.walk(func(path string, _ int64, _ *Entry) {
		if os.Remove(path) == nil {
			removed++
		}
	})
	return removed, err
}

// Prune removes expired and unreadable entries, leaving live baselines in
// place.
func (c *Cache) Prune() (int, error) {
	removed := 0
	err := c.walk(func(path string, _ int64, e *Entry) {
		if e != nil && !c.expired(*e) {
			return
		}
		if os.Remove(path) == nil {
			removed++
		}
	})
	return removed, err
}

// Stats summarizes the cache directory. ByLabel counts entries per label,
// which for baselines is the reviewer that produced them.
type Stats struct {
	Dir        string         `json:"dir"`
	Entries    int            `json:"entries"`
	TotalBytes int64          `json:"totalBytes"`
	Expired    int            `json:"expired"`
	ByLabel    map[string]int `json:"byLabel,omitempty"`
}

// GetStats walks the cache directory.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Dir: c.Dir()}
	err := c.walk(func(_ string, size int64, e *Entry) {
		stats.Entries++
		stats.TotalBytes += size
		if e == nil {
			return
		}
		if c.expired(*e) {
			stats.Expired++
		}
		if e.Label != "" {
			if stats.ByLabel == nil {
				stats.ByLabel = make(map[string]int)
			}
			stats.ByLabel[e.Label]++
		}
	})
	return stats, err
}

// Dir is empty for a disabled cache.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Enabled returns whether caching is enabled.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Cache) expired(e Entry) bool {
	return c.ttlSeconds > 0 && time.Since(e.CreatedAt) > time.Duration(c.ttlSeconds)*time.Second
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// BaselineKey builds the key for a tool baseline: the reviewer, the
// revision it ran at and the make arguments that shaped the output.
func BaselineKey(reviewer, sha string, args ...string) string {
	return reviewer + ":" + sha + ":" + strings.Join(args, " ")
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, HashKey(key)+".json")
}

// DefaultDir is the per-user patchwise cache directory. The log file and
// the baseline cache live under it.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "patchwise"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "patchwise"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "patchwise", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "patchwise", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "patchwise"), nil
	}
}
