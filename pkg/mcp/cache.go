package mcp

import (
	"log/slog"
	"sync"
	"time"
)

// Tool cache limits.
const (
	// DefaultToolCacheTTL bounds how stale a cached tool list may get.
	DefaultToolCacheTTL = time.Hour

	// MaxToolCacheEntries caps the cache; the oldest entries are evicted
	// beyond this.
	MaxToolCacheEntries = 100
)

// cacheEntry holds one server's discovered tools plus the live client their
// execute closures call through.
type cacheEntry struct {
	serverName string // sanitized
	configHash string
	cachedAt   time.Time
	tools      []*Tool
	client     toolConn
}

// dispose closes the entry's client. Close errors are logged and swallowed:
// the handle must be released even when close fails.
func (e *cacheEntry) dispose(logger *slog.Logger) {
	if e.client == nil {
		return
	}
	if err := e.client.Close(); err != nil {
		logger.Warn("Failed to close cached MCP client",
			"server", e.serverName, "error", err)
	}
}

type toolCache struct {
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newToolCache(ttl time.Duration, logger *slog.Logger) *toolCache {
	if ttl <= 0 {
		ttl = DefaultToolCacheTTL
	}
	return &toolCache{
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]*cacheEntry),
	}
}

// get returns the entry for serverName iff it was built from the same config
// hash and has not outlived the TTL.
func (tc *toolCache) get(serverName, configHash string) *cacheEntry {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	entry, ok := tc.entries[serverName]
	if !ok {
		return nil
	}
	if entry.configHash != configHash || time.Since(entry.cachedAt) > tc.ttl {
		return nil
	}
	return entry
}

// put stores an entry, disposing any stale predecessor and evicting the
// oldest entries beyond the cap.
func (tc *toolCache) put(entry *cacheEntry) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if old, ok := tc.entries[entry.serverName]; ok && old != entry {
		old.dispose(tc.logger)
	}
	tc.entries[entry.serverName] = entry

	for len(tc.entries) > MaxToolCacheEntries {
		var oldest *cacheEntry
		for _, e := range tc.entries {
			if oldest == nil || e.cachedAt.Before(oldest.cachedAt) {
				oldest = e
			}
		}
		oldest.dispose(tc.logger)
		delete(tc.entries, oldest.serverName)
	}
}

// refresh resets the entry's age after a successful reconnect so the fresh
// connection is not evicted by a TTL computed from the original discovery.
func (tc *toolCache) refresh(serverName string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if entry, ok := tc.entries[serverName]; ok {
		entry.cachedAt = time.Now()
	}
}

// invalidate drops the entry for a server, disposing its client.
func (tc *toolCache) invalidate(serverName string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if entry, ok := tc.entries[serverName]; ok {
		entry.dispose(tc.logger)
		delete(tc.entries, serverName)
	}
}

// disposeAll drops every entry, closing every client.
func (tc *toolCache) disposeAll() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for _, entry := range tc.entries {
		entry.dispose(tc.logger)
	}
	tc.entries = make(map[string]*cacheEntry)
}

func (tc *toolCache) len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.entries)
}
