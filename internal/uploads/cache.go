// Package uploads deduplicates evidence uploads across runs with a
// persistent content-addressed cache.
package uploads

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"secq/internal/logging"
)

// Cache maps "<filename>:<fingerprint>" to a remote artifact ID. Entries
// may be stale; callers confirm them against the remote store.
type Cache struct {
	path    string
	persist bool

	mu      sync.Mutex
	entries map[string]string
	dirty   bool
}

// LoadCache reads the cache at path. A missing, unreadable or corrupt file
// yields an empty cache. With persist false nothing is read or written.
func LoadCache(path string, persist bool) *Cache {
	c := &Cache{path: path, persist: persist, entries: make(map[string]string)}
	if !persist || path == "" {
		logging.CacheDebug("upload persistence disabled")
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.CacheWarn("could not read upload cache %s: %v", path, err)
		}
		return c
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		logging.CacheWarn("ignoring corrupt upload cache %s: %v", path, err)
		return c
	}
	if entries != nil {
		c.entries = entries
	}
	logging.Cache("loaded %d cached uploads from %s", len(c.entries), path)
	return c
}

// Path returns the backing file.
func (c *Cache) Path() string { return c.path }

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[key]
	return id, ok
}

func (c *Cache) Set(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[key] == id {
		return
	}
	c.entries[key] = id
	c.dirty = true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.dirty = true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Dirty reports whether the cache changed since load or the last Save.
func (c *Cache) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Entries returns a copy of the cache contents.
func (c *Cache) Entries() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Save atomically replaces the cache file when persistence is on and the
// cache changed. The file is written to <path>.tmp and renamed over the
// destination.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.persist || c.path == "" || !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal upload cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename to %s: %w", c.path, err)
	}

	c.dirty = false
	logging.CacheDebug("saved %d cached uploads to %s", len(c.entries), c.path)
	return nil
}

// Clear removes the cache file and empties the in-memory map.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]string)
	c.dirty = false
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", c.path, err)
	}
	return nil
}
