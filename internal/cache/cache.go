// Package cache holds resolved secret values in memory for a bounded time.
//
// Entries are never evicted by age. Staleness is computed when an entry is
// read, so an expired value stays available as a fallback until Clear. Values
// are sealed in memguard enclaves between reads and nothing in this package
// can be serialized.
package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/systmms/secretref/internal/metrics"
	"github.com/systmms/secretref/internal/reference"
	"github.com/systmms/secretref/internal/secure"
)

// ErrNotSerializable is returned by every marshaler in this package.
var ErrNotSerializable = errors.New("cache contents cannot be serialized")

// State is the freshness of a cache entry at lookup time.
type State int

const (
	// Absent means there is no entry for the key.
	Absent State = iota
	// Fresh means the entry is younger than its TTL.
	Fresh
	// Stale means the entry outlived its TTL but is still held.
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	}
	return "absent"
}

type entry struct {
	buf       *secure.SecureBuffer
	fetchedAt time.Time
	ttl       time.Duration
}

type generation struct {
	id      uint64
	entries map[reference.Key]*entry
}

// Cache maps reference keys to values. It is safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	gen *generation

	group   singleflight.Group
	now     func() time.Time
	metrics *metrics.ResolutionMetrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithMetrics records lookups and clears.
func WithMetrics(m *metrics.ResolutionMetrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		gen:     &generation{id: 1, entries: make(map[reference.Key]*entry)},
		now:     time.Now,
		metrics: metrics.NewResolutionMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the state of key and, unless absent, its value. It never
// blocks on I/O.
func (c *Cache) Lookup(key reference.Key) Lookup {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l := lookupIn(c.gen, key, c.now())
	c.metrics.RecordCacheLookup(key.Provider, l.state.String())
	return l
}

func lookupIn(gen *generation, key reference.Key, now time.Time) Lookup {
	e, ok := gen.entries[key]
	if !ok {
		return Lookup{state: Absent, gen: gen.id}
	}
	value, err := e.buf.Reveal()
	if err != nil {
		return Lookup{state: Absent, gen: gen.id}
	}
	state := Stale
	if now.Before(e.fetchedAt.Add(e.ttl)) {
		state = Fresh
	}
	return Lookup{state: state, value: value, fetchedAt: e.fetchedAt, gen: gen.id}
}

// Store records value for key with the given TTL, replacing any entry.
func (c *Cache) Store(key reference.Key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, value, ttl)
}

// storeIn stores only if the generation a fetch started in is still current,
// so a fetch that straddles Clear does not repopulate the new generation.
func (c *Cache) storeIn(genID uint64, key reference.Key, value string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.id != genID {
		return false
	}
	c.storeLocked(key, value, ttl)
	return true
}

func (c *Cache) storeLocked(key reference.Key, value string, ttl time.Duration) {
	if old, ok := c.gen.entries[key]; ok {
		old.buf.Destroy()
	}
	c.gen.entries[key] = &entry{
		buf:       secure.Seal(value),
		fetchedAt: c.now(),
		ttl:       ttl,
	}
}

// Clear atomically replaces the cache contents with an empty generation.
// Lookups observe either the old contents or the new, never a mix.
func (c *Cache) Clear() {
	c.mu.Lock()
	old := c.gen
	c.gen = &generation{id: old.id + 1, entries: make(map[reference.Key]*entry)}
	c.mu.Unlock()

	for _, e := range old.entries {
		e.buf.Destroy()
	}
	c.metrics.RecordCacheClear()
}

// Len returns the number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.gen.entries)
}

// Generation returns the id of the current generation. It changes on Clear.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen.id
}

// FetchFunc performs the provider call for one key.
type FetchFunc func(ctx context.Context) (string, error)

// Fetch calls fn to obtain key and stores the result with ttl. Concurrent
// Fetch calls for the same key in the same generation share one call of fn
// and all receive its result.
//
// fn runs detached from ctx, bounded only by timeout (when positive), so a
// caller that gives up early does not cancel the call for other waiters and
// the result still reaches the cache. Fetch itself returns ctx.Err() as soon
// as ctx is done.
//
// If a fresh entry appears between the caller's lookup and the call, fn is
// not called and the fresh value is returned.
func (c *Cache) Fetch(ctx context.Context, key reference.Key, ttl, timeout time.Duration, fn FetchFunc) (string, error) {
	c.mu.RLock()
	genID := c.gen.id
	c.mu.RUnlock()

	flightKey := strconv.FormatUint(genID, 10) + "\x00" + key.String()
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		c.mu.RLock()
		current := c.gen
		var l Lookup
		if current.id == genID {
			l = lookupIn(current, key, c.now())
		}
		c.mu.RUnlock()
		if l.state == Fresh {
			return l.value, nil
		}

		callCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, timeout)
			defer cancel()
		}

		value, err := fn(callCtx)
		if err != nil {
			return nil, err
		}
		c.storeIn(genID, key, value, ttl)
		return value, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
