package providers

import (
	"sync"
	"time"
)

// tokenRefreshBuffer is subtracted from a token's lifetime so it is renewed
// before the store rejects it.
const tokenRefreshBuffer = 5 * time.Second

// TokenCache stores an authentication token in memory for the lifetime of
// the process. It is safe for concurrent use and never persists the token.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenCache creates a new empty token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get retrieves the cached token if it exists and is not expired.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores a token valid for ttl.
func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > tokenRefreshBuffer {
		ttl -= tokenRefreshBuffer
	}
	c.token = token
	c.expiresAt = c.now().Add(ttl)
}

// Clear removes the cached token
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}

// TTL returns the remaining time until the token expires, or 0.
func (c *TokenCache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return 0
	}
	remaining := c.expiresAt.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
