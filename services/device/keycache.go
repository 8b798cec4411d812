package device

import (
	"container/list"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"
)

// keyEntry records one successful API key verification
type keyEntry struct {
	uid        string
	digest     [sha256.Size]byte
	insertedAt time.Time
	element    *list.Element
}

// KeyCache remembers recently verified device API keys so repeated ingest
// calls skip the argon2 check. An entry is bound to the stored hash it was
// verified against, so rotating or deleting a device invalidates it.
// Safe for concurrent use.
type KeyCache struct {
	mu      sync.Mutex
	entries map[string]*keyEntry // key: device UID
	lru     *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// KeyCacheStats is a snapshot of cache activity
type KeyCacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
}

// NewKeyCache creates a cache holding at most maxSize devices for ttl each
func NewKeyCache(maxSize int, ttl time.Duration) *KeyCache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &KeyCache{
		entries: make(map[string]*keyEntry),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func keyDigest(apiKey, storedHash string) [sha256.Size]byte {
	return sha256.Sum256([]byte(apiKey + "\x00" + storedHash))
}

// Verified reports whether apiKey was recently verified against storedHash
func (c *KeyCache) Verified(uid, apiKey, storedHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[uid]
	if !ok {
		c.misses++
		return false
	}
	if c.now().Sub(entry.insertedAt) > c.ttl {
		c.removeLocked(uid)
		c.misses++
		return false
	}

	digest := keyDigest(apiKey, storedHash)
	if subtle.ConstantTimeCompare(digest[:], entry.digest[:]) != 1 {
		c.misses++
		return false
	}

	c.lru.MoveToFront(entry.element)
	c.hits++
	return true
}

// Remember records a successful verification
func (c *KeyCache) Remember(uid, apiKey, storedHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	digest := keyDigest(apiKey, storedHash)
	if entry, ok := c.entries[uid]; ok {
		entry.digest = digest
		entry.insertedAt = c.now()
		c.lru.MoveToFront(entry.element)
		return
	}

	if c.lru.Len() >= c.maxSize {
		if back := c.lru.Back(); back != nil {
			c.removeLocked(back.Value.(string))
		}
	}

	entry := &keyEntry{uid: uid, digest: digest, insertedAt: c.now()}
	entry.element = c.lru.PushFront(uid)
	c.entries[uid] = entry
}

// Invalidate drops the entry for uid
func (c *KeyCache) Invalidate(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(uid)
}

// Stats returns cache statistics
func (c *KeyCache) Stats() KeyCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return KeyCacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// must be called with mu held
func (c *KeyCache) removeLocked(uid string) {
	if entry, ok := c.entries[uid]; ok {
		c.lru.Remove(entry.element)
		delete(c.entries, uid)
	}
}
