package service

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type holderEntry struct {
	HolderID   string
	HolderName string
	ExpiresAt  time.Time
}

// holderCache is a bounded request id -> holder map. Entries die at the lock's
// deadline; writers invalidate or refresh on every transition.
type holderCache struct {
	entries *lru.Cache[string, holderEntry]
}

func newHolderCache(size int) *holderCache {
	if size <= 0 {
		size = 1
	}
	entries, err := lru.New[string, holderEntry](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &holderCache{entries: entries}
}

func (c *holderCache) get(requestID string, now time.Time) (holderEntry, bool) {
	entry, ok := c.entries.Get(requestID)
	if !ok {
		return holderEntry{}, false
	}
	if entry.ExpiresAt.Before(now) {
		c.entries.Remove(requestID)
		return holderEntry{}, false
	}
	return entry, true
}

func (c *holderCache) put(requestID string, entry holderEntry) {
	c.entries.Add(requestID, entry)
}

func (c *holderCache) invalidate(requestID string) {
	c.entries.Remove(requestID)
}

func (c *holderCache) len() int {
	return c.entries.Len()
}
