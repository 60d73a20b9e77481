package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LordWorm1996/DormNet/internal/domain/providers"
)

type lruEntry struct {
	value     []byte
	expiresAt time.Time
}

// LRUAdapter is an in-process CacheProvider for single-instance runs without Redis
type LRUAdapter struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	now   func() time.Time
}

// NewLRUAdapter creates a cache holding at most size entries
func NewLRUAdapter(size int) (*LRUAdapter, error) {
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUAdapter{cache: c, now: time.Now}, nil
}

var _ providers.CacheProvider = (*LRUAdapter)(nil)

// Get retrieves a value, ErrCacheMiss when absent or expired
func (a *LRUAdapter) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.cache.Get(key)
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !a.now().Before(entry.expiresAt) {
		a.cache.Remove(key)
		return nil, providers.ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value; expirationSeconds <= 0 means no expiry
func (a *LRUAdapter) Set(_ context.Context, key string, value []byte, expirationSeconds int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := lruEntry{value: value}
	if expirationSeconds > 0 {
		entry.expiresAt = a.now().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.cache.Add(key, entry)
	return nil
}

// Delete removes a value
func (a *LRUAdapter) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache.Remove(key)
	return nil
}

// DeletePattern removes keys matching a glob pattern (Redis-style * and ?)
func (a *LRUAdapter) DeletePattern(_ context.Context, pattern string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range a.cache.Keys() {
		if globMatch(pattern, key) {
			a.cache.Remove(key)
		}
	}
	return nil
}

// globMatch matches s against a pattern where * spans any run of bytes
// (including '/') and ? matches exactly one byte.
func globMatch(pattern, s string) bool {
	p, i := 0, 0
	star, mark := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[i]):
			p++
			i++
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, i
			p++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
