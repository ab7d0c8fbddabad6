package cache

import (
	"strconv"
	"time"
)

// Lookup is the result of a cache read. Its value is only reachable through
// Value; every formatting and marshalling path is redacted.
type Lookup struct {
	state     State
	value     string
	fetchedAt time.Time
	gen       uint64
}

// State returns the freshness observed.
func (l Lookup) State() State {
	return l.state
}

// Value returns the cached plaintext. It is empty when State is Absent.
func (l Lookup) Value() string {
	return l.value
}

// FetchedAt returns when the value was stored.
func (l Lookup) FetchedAt() time.Time {
	return l.fetchedAt
}

// Generation returns the id of the cache generation the read observed.
func (l Lookup) Generation() uint64 {
	return l.gen
}

func (l Lookup) String() string {
	return "cache.Lookup{" + l.state.String() + "}"
}

// GoString implements fmt.GoStringer.
func (l Lookup) GoString() string {
	return l.String()
}

// MarshalJSON always fails.
func (l Lookup) MarshalJSON() ([]byte, error) {
	return nil, ErrNotSerializable
}

// MarshalText always fails.
func (l Lookup) MarshalText() ([]byte, error) {
	return nil, ErrNotSerializable
}

// MarshalYAML always fails.
func (l Lookup) MarshalYAML() (interface{}, error) {
	return nil, ErrNotSerializable
}

// GobEncode always fails.
func (l Lookup) GobEncode() ([]byte, error) {
	return nil, ErrNotSerializable
}

// MarshalJSON always fails.
func (c *Cache) MarshalJSON() ([]byte, error) {
	return nil, ErrNotSerializable
}

// MarshalText always fails.
func (c *Cache) MarshalText() ([]byte, error) {
	return nil, ErrNotSerializable
}

// MarshalYAML always fails.
func (c *Cache) MarshalYAML() (interface{}, error) {
	return nil, ErrNotSerializable
}

// GobEncode always fails.
func (c *Cache) GobEncode() ([]byte, error) {
	return nil, ErrNotSerializable
}

// String describes the cache without its contents.
func (c *Cache) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return "cache.Cache{generation: " + strconv.FormatUint(c.gen.id, 10) + ", entries: " + strconv.Itoa(len(c.gen.entries)) + "}"
}

// GoString implements fmt.GoStringer.
func (c *Cache) GoString() string {
	return c.String()
}
