package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
)

// CacheKeyPrefix prefixes every cached HTTP response
const CacheKeyPrefix = "http:cache:"

// CacheRoute enables response caching for one path. Prefix rules match every
// path below Path; the others match it exactly.
type CacheRoute struct {
	Path       string
	Prefix     bool
	TTLSeconds int
}

// DefaultCacheRoutes lists the cached read routes
func DefaultCacheRoutes() []CacheRoute {
	return []CacheRoute{
		{Path: "/api/appliances", TTLSeconds: 60},
		{Path: "/api/appliances/", Prefix: true, TTLSeconds: 60},
		{Path: "/api/calendar", TTLSeconds: 30},
		{Path: "/api/bookings", TTLSeconds: 15},
	}
}

// CacheMiddleware serves repeated GETs on cached routes from the cache provider.
// Entries are dropped by CacheInvalidationService when reservations change.
type CacheMiddleware struct {
	cache   providers.CacheProvider
	routes  []CacheRoute
	metrics *observability.Metrics
}

func NewCacheMiddleware(cache providers.CacheProvider, metrics *observability.Metrics) *CacheMiddleware {
	return &CacheMiddleware{cache: cache, routes: DefaultCacheRoutes(), metrics: metrics}
}

// Middleware returns the cache middleware handler
func (m *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := m.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := CacheKey(r)
		ctx := r.Context()

		if cached, err := m.cache.Get(ctx, key); err == nil {
			observability.RecordCacheHit(ctx, m.metrics, route.Path)
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(cached)
			return
		}

		observability.RecordCacheMiss(ctx, m.metrics, route.Path)
		w.Header().Set("X-Cache", "MISS")

		tee := &teeWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(tee, r)

		if tee.status != http.StatusOK || tee.body.Len() == 0 {
			return
		}
		if err := m.cache.Set(ctx, key, tee.body.Bytes(), route.TTLSeconds); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		}
	})
}

// match prefers an exact rule, then the longest prefix rule
func (m *CacheMiddleware) match(r *http.Request) (CacheRoute, bool) {
	if r.Method != http.MethodGet || m.cache == nil {
		return CacheRoute{}, false
	}

	var best CacheRoute
	found := false
	for _, route := range m.routes {
		switch {
		case !route.Prefix && route.Path == r.URL.Path:
			return route, true
		case route.Prefix && strings.HasPrefix(r.URL.Path, route.Path) && len(route.Path) > len(best.Path):
			best, found = route, true
		}
	}
	return best, found
}

// CacheKey keeps the path readable for pattern invalidation and hashes the
// normalized query
func CacheKey(r *http.Request) string {
	key := CacheKeyPrefix + r.URL.Path
	if r.URL.RawQuery == "" {
		return key
	}
	sum := sha256.Sum256([]byte(r.URL.Query().Encode()))
	return key + "?" + hex.EncodeToString(sum[:8])
}

// teeWriter passes the response through while keeping a copy of the body
type teeWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (t *teeWriter) WriteHeader(status int) {
	if t.wroteHeader {
		return
	}
	t.status = status
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *teeWriter) Write(p []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	t.body.Write(p)
	return t.ResponseWriter.Write(p)
}
