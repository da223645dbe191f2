package service

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultSessionCapacity = 512
	DefaultSessionTTL      = 30 * time.Minute
)

// SessionKey identifies one conversation: a user can hold several
// independent sessions.
type SessionKey struct {
	UserID    string
	SessionID string
}

type sessionEntry struct {
	key      SessionKey
	answerer *Answerer
	lastUsed time.Time
}

// SessionCache is a bounded LRU of per-session answerers with idle
// expiry. When the cache is full the least recently used session is
// evicted; sessions idle past the TTL are dropped lazily on access.
type SessionCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List // front = most recently used
	entries  map[SessionKey]*list.Element
	now      func() time.Time
}

func NewSessionCache(capacity int, ttl time.Duration) *SessionCache {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		entries:  make(map[SessionKey]*list.Element),
		now:      time.Now,
	}
}

// GetOrCreate returns the live answerer for key, or builds one via build
// when the session is absent or expired.
func (c *SessionCache) GetOrCreate(key SessionKey, build func() *Answerer) *Answerer {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*sessionEntry)
		if now.Sub(entry.lastUsed) <= c.ttl {
			entry.lastUsed = now
			c.order.MoveToFront(el)
			return entry.answerer
		}
		c.remove(el)
	}

	entry := &sessionEntry{key: key, answerer: build(), lastUsed: now}
	c.entries[key] = c.order.PushFront(entry)

	for c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
	return entry.answerer
}

// Delete drops one session. Idempotent.
func (c *SessionCache) Delete(key SessionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// EvictDepartment drops every session scoped to the given department, so
// that knowledge base changes are not masked by stale conversation state.
func (c *SessionCache) EvictDepartment(department string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*sessionEntry)
		if entry.answerer.Department() == department {
			c.remove(el)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of cached sessions, including any not yet
// lazily expired.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *SessionCache) remove(el *list.Element) {
	entry := el.Value.(*sessionEntry)
	delete(c.entries, entry.key)
	c.order.Remove(el)
}
