package secrets

import (
	"sync"
	"time"
)

// secretCache is a simple in-memory TTL cache shared by the AWS and Vault
// adapters. Webhook signing keys are read on every delivery, so a short
// cache keeps the secret backend off the hot path.
type secretCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	enabled bool
	ttl     time.Duration
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	return &secretCache{
		entries: make(map[string]*cacheEntry),
		enabled: enabled,
		ttl:     ttl,
	}
}

func (c *secretCache) get(name string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[name]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (c *secretCache) set(name, value string) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[name] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}
