// ABOUTME: TTL fingerprint cache that drops engine events redelivered on reconnect or replay.
// ABOUTME: Size-bounded with insertion-order eviction so a chatty engine cannot grow it forever.

package dedupe

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Fingerprint derives the dedup identity of a raw engine notification. The
// same bytes redelivered for the same engine hash to the same fingerprint,
// while identical payloads from different engines stay distinct.
func Fingerprint(engine string, raw []byte) string {
	h := sha256.New()
	h.Write([]byte(engine))
	h.Write([]byte{0})
	h.Write(raw)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// entry stores when a fingerprint was observed and its slot in the
// insertion-order list.
type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers recently observed fingerprints for a TTL. Ingest consults
// it before reducing an event, so a stream replayed after a reconnect does
// not double-apply. A doubly-linked list keeps insertion order for O(1)
// eviction when the cache is full.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List // oldest fingerprint at the front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a fingerprint cache with the given TTL and maximum size. A
// background goroutine sweeps expired entries; call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Observe atomically records a fingerprint and reports whether it was
// already present and fresh. Ingest drops the event when Observe returns
// true. The check and the record happen under one lock so two copies of the
// same event racing through ingest cannot both win.
func (c *Cache) Observe(fp string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fp]; ok && time.Since(e.seenAt) < c.ttl {
		return true
	}
	c.rememberLocked(fp)
	return false
}

// Seen reports whether the fingerprint is present and fresh, without
// recording it.
func (c *Cache) Seen(fp string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[fp]
	if !ok {
		return false
	}
	return time.Since(e.seenAt) < c.ttl
}

// Remember records a fingerprint unconditionally, refreshing its TTL if it
// is already present.
func (c *Cache) Remember(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rememberLocked(fp)
}

// Len reports the number of live entries, expired or not. Exposed for the
// hub's stats endpoint.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// rememberLocked records a fingerprint. Must be called with mu held.
func (c *Cache) rememberLocked(fp string) {
	now := time.Now()

	if e, exists := c.entries[fp]; exists {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(fp)
	c.entries[fp] = &entry{seenAt: now, element: elem}
}

// evictOldest removes the front of the insertion-order list. Must be called
// with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	fp, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, fp)
}

// sweepLoop periodically removes expired entries until Close.
func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes every expired entry.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for fp, e := range c.entries {
		if now.Sub(e.seenAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.entries, fp)
		}
	}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
