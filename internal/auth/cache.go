package auth

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache remembers verified API keys. An entry is fresh for ttl after its
// last successful verification, then served stale (one background refresh
// at a time) until maxStale has passed, after which it is a miss.
//
// Entries are keyed by the SHA-256 digest of the key, never the key itself.
type AuthCache struct {
	entries  sync.Map // [sha256.Size]byte -> *cachedClient
	ttl      time.Duration
	maxStale time.Duration
	now      func() time.Time
}

type cachedClient struct {
	client     *Client
	verifiedAt time.Time
	refreshing atomic.Bool
}

// CacheLookup is the outcome of AuthCache.Lookup.
type CacheLookup struct {
	Client *Client
	Hit    bool
	// Refresh is true for exactly one caller per stale entry until the
	// entry is stored again or RefreshFailed is called.
	Refresh bool
}

// NewAuthCache creates a cache. maxStale below ttl is raised to ttl.
func NewAuthCache(ttl, maxStale time.Duration) *AuthCache {
	if maxStale < ttl {
		maxStale = ttl
	}
	return &AuthCache{ttl: ttl, maxStale: maxStale, now: time.Now}
}

func cacheKey(apiKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(apiKey))
}

// Lookup never blocks on the key store.
func (c *AuthCache) Lookup(apiKey string) CacheLookup {
	key := cacheKey(apiKey)
	val, ok := c.entries.Load(key)
	if !ok {
		return CacheLookup{}
	}

	e := val.(*cachedClient)
	age := c.now().Sub(e.verifiedAt)
	switch {
	case age < c.ttl:
		return CacheLookup{Client: e.client, Hit: true}
	case age < c.maxStale:
		return CacheLookup{
			Client:  e.client,
			Hit:     true,
			Refresh: e.refreshing.CompareAndSwap(false, true),
		}
	default:
		c.entries.CompareAndDelete(key, e)
		return CacheLookup{}
	}
}

// Store records a successful verification of apiKey.
func (c *AuthCache) Store(apiKey string, client *Client) {
	c.entries.Store(cacheKey(apiKey), &cachedClient{
		client:     client,
		verifiedAt: c.now(),
	})
}

// Evict drops apiKey, e.g. after it was revoked or its client disabled.
func (c *AuthCache) Evict(apiKey string) {
	c.entries.Delete(cacheKey(apiKey))
}

// RefreshFailed keeps the stale entry and lets the next lookup retry.
func (c *AuthCache) RefreshFailed(apiKey string) {
	if val, ok := c.entries.Load(cacheKey(apiKey)); ok {
		val.(*cachedClient).refreshing.Store(false)
	}
}
