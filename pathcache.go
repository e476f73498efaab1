package ftpclient

import "sync"

// pathCacheKey is (server, current_path, subdir_or_empty) as described in
// the glossary's "Path cache" entry.
type pathCacheKey struct {
	server    ServerKey
	current   string
	subdirOrEmpty string
}

// PathCache memoizes (current_path, subdir) -> canonical resolved path, as
// learned from PWD responses, so ChangeDir can skip a PWD round-trip it has
// already paid for once.
type PathCache struct {
	mu   sync.RWMutex
	byKey map[pathCacheKey]ServerPath
}

// NewPathCache builds an empty, ready-to-use cache.
func NewPathCache() *PathCache {
	return &PathCache{byKey: make(map[pathCacheKey]ServerPath)}
}

// Lookup returns the canonical path learned for (server, current, subdir),
// if any.
func (c *PathCache) Lookup(server ServerKey, current ServerPath, subdir string) (ServerPath, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byKey[pathCacheKey{server: server, current: current.String(), subdirOrEmpty: subdir}]

	return p, ok
}

// Store records that (current, subdir) resolves to canonical on server.
func (c *PathCache) Store(server ServerKey, current ServerPath, subdir string, canonical ServerPath) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byKey[pathCacheKey{server: server, current: current.String(), subdirOrEmpty: subdir}] = canonical
}

// Invalidate drops every cache entry for a server rooted at, or under, path
// (used by Rename/RemoveDir/Mkdir once the tree below path may have
// changed shape).
func (c *PathCache) Invalidate(server ServerKey, path ServerPath) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := path.String()

	for k := range c.byKey {
		if k.server == server && (k.current == prefix || len(k.current) > len(prefix) && k.current[:len(prefix)] == prefix) {
			delete(c.byKey, k)
		}
	}
}
