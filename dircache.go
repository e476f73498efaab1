package ftpclient

import (
	"sync"
	"time"
)

// dirCacheKey indexes the DirectoryCache by server and remote path.
type dirCacheKey struct {
	server ServerKey
	path   string
}

// DirectoryCache is the process-wide, in-memory cache of listings and
// per-file state keyed by (Server, Path). It is only updated by operations
// that have observed a successful server confirmation of a mutation.
type DirectoryCache struct {
	mu       sync.RWMutex
	listings map[dirCacheKey]DirectoryListing

	locksMu sync.Mutex
	locks   map[dirCacheKey]chan struct{} // closed when the lock is released
}

// NewDirectoryCache builds an empty, ready-to-use cache.
func NewDirectoryCache() *DirectoryCache {
	return &DirectoryCache{
		listings: make(map[dirCacheKey]DirectoryListing),
		locks:    make(map[dirCacheKey]chan struct{}),
	}
}

// Lookup returns the cached listing for (server, path), if any, and whether
// it was found.
func (c *DirectoryCache) Lookup(server ServerKey, path ServerPath) (DirectoryListing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.listings[dirCacheKey{server: server, path: path.String()}]

	return l, ok
}

// Fresh reports whether a cached listing exists and was observed after
// maxAge ago, with no unsure flags raised since.
func (c *DirectoryCache) Fresh(server ServerKey, path ServerPath, maxAge time.Duration) (DirectoryListing, bool) {
	l, ok := c.Lookup(server, path)
	if !ok {
		return DirectoryListing{}, false
	}

	if l.Unsure != UnsureNone {
		return DirectoryListing{}, false
	}

	if time.Since(l.FirstListTime) > maxAge {
		return DirectoryListing{}, false
	}

	return l, true
}

// Store replaces the cached listing for (server, path).
func (c *DirectoryCache) Store(server ServerKey, listing DirectoryListing) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listings[dirCacheKey{server: server, path: listing.Path.String()}] = listing
}

// Update marks the cached listing for (server, path) as unsure because of
// an observed mutation kind, without discarding the entries (a subsequent
// List call will decide whether to refresh).
func (c *DirectoryCache) Update(server ServerKey, path ServerPath, kind UnsureFlags) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := dirCacheKey{server: server, path: path.String()}

	l, ok := c.listings[key]
	if !ok {
		l = DirectoryListing{Path: path}
	}

	l.Unsure |= kind
	c.listings[key] = l
}

// Invalidate drops the cached listing for (server, path) entirely.
func (c *DirectoryCache) Invalidate(server ServerKey, path ServerPath) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.listings, dirCacheKey{server: server, path: path.String()})
}

// Lock is an advisory, per-path cooperative lock: the caller blocks until
// any earlier holder for the same (server, path) releases it, then becomes
// the holder itself. Used to serialize concurrent List operations on the
// same directory.
func (c *DirectoryCache) Lock(server ServerKey, path ServerPath) func() {
	key := dirCacheKey{server: server, path: path.String()}

	for {
		c.locksMu.Lock()
		wait, busy := c.locks[key]

		if !busy {
			done := make(chan struct{})
			c.locks[key] = done
			c.locksMu.Unlock()

			return func() {
				c.locksMu.Lock()
				delete(c.locks, key)
				c.locksMu.Unlock()
				close(done)
			}
		}

		c.locksMu.Unlock()
		<-wait
	}
}
