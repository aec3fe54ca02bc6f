package authz

import (
	"sync"
	"time"
)

// permissionCache is a read-through cache of per-actor permission sets. It
// exists to bound the cost of the role/permission join on hot request paths;
// the TTL bounds the staleness window, and role-assignment changes invalidate
// explicitly on top of that.
type permissionCache struct {
	mu      sync.RWMutex
	entries map[uint]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	perms     map[string]bool
	expiresAt time.Time
}

func newPermissionCache(ttl time.Duration) *permissionCache {
	return &permissionCache{
		entries: make(map[uint]cacheEntry),
		ttl:     ttl,
	}
}

// get returns the cached set for a user. The returned map is shared and must
// be treated as read-only.
func (c *permissionCache) get(userID uint) (map[string]bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.perms, true
}

func (c *permissionCache) put(userID uint, perms map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{
		perms:     perms,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *permissionCache) invalidate(userID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// invalidateAll drops every entry. Used when a role's permission set changes,
// since any number of users may hold that role.
func (c *permissionCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint]cacheEntry)
}
