// Package diskcache implements a TTL key-value cache persisted as a single
// JSON blob. Expiry is lazy: stale entries are skipped on read and dropped
// on the next flush, never deleted eagerly.
package diskcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/interfaces"
)

// entry is the stored form of a cached value.
type entry struct {
	Value      json.RawMessage `json:"value"`
	CachedAt   time.Time       `json:"cached_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
	Durable    bool            `json:"-"`
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.CachedAt) > time.Duration(e.TTLSeconds)*time.Second
}

// Cache is safe for concurrent use. The on-disk file is rewritten wholesale
// under the cache lock; last-writer-wins is acceptable because entries are
// independent by key.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	path    string
	logger  *common.Logger
	now     func() time.Time
}

// NewCache opens a cache backed by the given file path. A missing or
// unreadable file is non-fatal: the cache starts empty and logs the
// condition.
func NewCache(logger *common.Logger, path string) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		path:    path,
		logger:  logger,
		now:     time.Now,
	}
	c.load()
	return c
}

// load reads the persisted blob. Entries loaded from disk are durable by
// definition; they were only ever written through SetDurable.
func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("path", c.path).Msg("Could not load cache file, starting empty")
		}
		return
	}

	var persisted map[string]entry
	if err := json.Unmarshal(data, &persisted); err != nil {
		c.logger.Warn().Err(err).Str("path", c.path).Msg("Cache file corrupt, starting empty")
		return
	}

	for k, e := range persisted {
		e.Durable = true
		c.entries[k] = e
	}
	c.logger.Debug().Int("entries", len(persisted)).Str("path", c.path).Msg("Cache loaded")
}

// Get unmarshals the cached value into dest and reports whether a live
// entry was found. Stale entries are left in place for the next flush.
func (c *Cache) Get(key string, dest any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return false
	}
	if err := json.Unmarshal(e.Value, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cached value unmarshal failed")
		return false
	}
	return true
}

// Set stores a value in memory only.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Could not cache value")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{Value: raw, CachedAt: c.now(), TTLSeconds: int64(ttl / time.Second)}
}

// SetDurable stores a value and writes the durable entries through to disk.
func (c *Cache) SetDurable(key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{Value: raw, CachedAt: c.now(), TTLSeconds: int64(ttl / time.Second), Durable: true}
	return c.flushLocked()
}

// Flush persists the durable entries to disk.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// flushLocked writes the durable, non-expired entries atomically via a temp
// file rename. Caller holds c.mu.
func (c *Cache) flushLocked() error {
	now := c.now()
	persisted := make(map[string]entry, len(c.entries))
	for k, e := range c.entries {
		if e.Durable && !e.expired(now) {
			persisted[k] = e
		}
	}

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Close flushes the cache.
func (c *Cache) Close() error {
	return c.Flush()
}

// Ensure Cache implements the Cache contract
var _ interfaces.Cache = (*Cache)(nil)
