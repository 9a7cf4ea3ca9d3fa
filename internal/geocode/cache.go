package geocode

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// CacheEntry is one remembered lookup. Misses are stored with Found=false so
// they are not retried on the next run.
type CacheEntry struct {
	Query     string    `json:"query"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Address   string    `json:"address,omitempty"`
	Found     bool      `json:"found"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache is a persistent query cache. It is not safe for concurrent use.
type Cache struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{Entries: map[string]CacheEntry{}}
}

// LoadCache reads a cache file. A blank path or a missing file yields an
// empty cache.
func LoadCache(path string) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return NewCache(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewCache(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: read cache %s", path)
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrapf(err, "geocode: parse cache %s", path)
	}
	if c.Entries == nil {
		c.Entries = map[string]CacheEntry{}
	}
	return &c, nil
}

// Save writes the cache to path, creating parent directories. A blank path
// is a no-op.
func (c *Cache) Save(path string) error {
	if c == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "geocode: create cache dir")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return eris.Wrap(err, "geocode: encode cache")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "geocode: write cache %s", path)
	}
	return nil
}

// Get looks up query, ignoring case and surrounding space.
func (c *Cache) Get(query string) (CacheEntry, bool) {
	if c == nil {
		return CacheEntry{}, false
	}
	e, ok := c.Entries[cacheKey(query)]
	return e, ok
}

// Set stores entry under query.
func (c *Cache) Set(query string, entry CacheEntry) {
	if c == nil {
		return
	}
	if c.Entries == nil {
		c.Entries = map[string]CacheEntry{}
	}
	entry.Query = query
	c.Entries[cacheKey(query)] = entry
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
