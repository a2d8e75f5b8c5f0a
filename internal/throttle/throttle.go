// Package throttle deduplicates rapid-fire identical requests to a
// responder. The first request creates a pending entry and performs the
// real call; duplicates arriving inside the freshness window replay the
// original result (byte-identical) or wait briefly for the in-flight
// call instead of hitting the backend twice.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Key builds the dedup key from the responder id and the leading
// prefixLen characters of the instruction. Long near-duplicates that
// differ only past the prefix collide on purpose; this mirrors the
// documented double-submit semantics.
func Key(responder, instruction string, prefixLen int) string {
	runes := []rune(instruction)
	if len(runes) > prefixLen {
		runes = runes[:prefixLen]
	}
	return fmt.Sprintf("%s:%s", responder, string(runes))
}

// Ticket is the caller's view of a cache entry.
type Ticket interface {
	// Completed returns the stored result when the entry resolved
	// within the freshness window.
	Completed() (string, bool)
	// Wait blocks until the in-flight original resolves, the timeout
	// elapses, or ctx is done. It returns the result only when the
	// original resolved successfully.
	Wait(ctx context.Context, timeout time.Duration) (string, bool)
}

// Cache is the injected dedup component. Implementations must
// serialize all state transitions for a given key.
type Cache interface {
	// GetOrCreate returns the entry for key, creating a pending one
	// when absent (or when the existing entry is stale). created is
	// true when the caller owns the entry and must call Resolve or
	// Fail exactly once.
	GetOrCreate(key string) (Ticket, bool)
	Resolve(key, result string)
	// Fail removes the entry so the next equivalent request retries.
	Fail(key string)
}

type entry struct {
	key       string
	createdAt time.Time
	done      chan struct{}
	result    string
	failed    bool
}

type memoryCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	order    []string // insertion order, oldest first
	window   time.Duration
	capacity int
	now      func() time.Time
}

// New creates an in-memory cache. window bounds replay freshness;
// capacity bounds retained entries (oldest evicted first on insert,
// consumed or not).
func New(window time.Duration, capacity int) Cache {
	return &memoryCache{
		entries:  make(map[string]*entry),
		window:   window,
		capacity: capacity,
		now:      time.Now,
	}
}

func (c *memoryCache) GetOrCreate(key string) (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		if !c.stale(e) {
			return &ticket{cache: c, e: e}, false
		}
		c.remove(key)
	}

	e := &entry{
		key:       key,
		createdAt: c.now(),
		done:      make(chan struct{}),
	}
	c.entries[key] = e
	c.order = append(c.order, key)
	c.prune()

	return &ticket{cache: c, e: e}, true
}

func (c *memoryCache) Resolve(key, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	select {
	case <-e.done:
		return // already settled
	default:
	}
	e.result = result
	close(e.done)
}

func (c *memoryCache) Fail(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.remove(key)
	select {
	case <-e.done:
	default:
		e.failed = true
		close(e.done)
	}
}

// stale reports whether a resolved entry has aged out of the replay
// window. Pending entries never go stale here; an abandoned in-flight
// call is still resolved by its owner when the call completes.
func (c *memoryCache) stale(e *entry) bool {
	select {
	case <-e.done:
	default:
		return false
	}
	return c.now().Sub(e.createdAt) > c.window
}

// prune drops oldest entries beyond capacity. Called with the lock held.
func (c *memoryCache) prune() {
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		if e, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			select {
			case <-e.done:
			default:
				e.failed = true
				close(e.done)
			}
		}
	}
}

// remove deletes key from the map and the insertion-order list.
// Called with the lock held.
func (c *memoryCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

type ticket struct {
	cache *memoryCache
	e     *entry
}

func (t *ticket) Completed() (string, bool) {
	select {
	case <-t.e.done:
	default:
		return "", false
	}
	if t.e.failed {
		return "", false
	}
	t.cache.mu.Lock()
	fresh := t.cache.now().Sub(t.e.createdAt) <= t.cache.window
	t.cache.mu.Unlock()
	if !fresh {
		return "", false
	}
	return t.e.result, true
}

func (t *ticket) Wait(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.e.done:
		if t.e.failed {
			return "", false
		}
		return t.e.result, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// Noop disables deduplication: every caller owns a fresh entry and
// Resolve/Fail are ignored. Useful in tests and when the cache is
// disabled per deployment.
type Noop struct{}

func (Noop) GetOrCreate(key string) (Ticket, bool) { return noopTicket{}, true }
func (Noop) Resolve(key, result string)            {}
func (Noop) Fail(key string)                       {}

type noopTicket struct{}

func (noopTicket) Completed() (string, bool) { return "", false }
func (noopTicket) Wait(ctx context.Context, timeout time.Duration) (string, bool) {
	return "", false
}
