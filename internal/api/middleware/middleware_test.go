package middleware_test

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordWorm1996/DormNet/internal/adapters/cache"
	"github.com/LordWorm1996/DormNet/internal/api/middleware"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

type stubSessions struct {
	user *entities.SessionUser
	err  error
}

func (s stubSessions) Resolve(*http.Request) (*entities.SessionUser, error) { return s.user, s.err }
func (s stubSessions) Issue(http.ResponseWriter, *entities.SessionUser) error {
	return nil
}

func whoAmI(w http.ResponseWriter, r *http.Request) {
	if user := middleware.UserFromContext(r.Context()); user != nil {
		_, _ = w.Write([]byte(user.ID))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
}

func TestSessionMiddleware(t *testing.T) {
	cases := []struct {
		name     string
		sessions stubSessions
		want     string
	}{
		{"valid session", stubSessions{user: &entities.SessionUser{ID: "u-1"}}, "u-1"},
		{"no cookie", stubSessions{}, "anonymous"},
		{"tampered cookie", stubSessions{err: errors.New("invalid session")}, "anonymous"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := middleware.SessionMiddleware(tc.sessions)(http.HandlerFunc(whoAmI))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.want, w.Body.String())
		})
	}
}

func TestRequireUserAndAdmin(t *testing.T) {
	resident := &entities.SessionUser{ID: "u-1", Role: entities.RoleUser}
	warden := &entities.SessionUser{ID: "a-1", Role: entities.RoleAdmin}

	serve := func(h http.HandlerFunc, user *entities.SessionUser) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if user != nil {
			req = req.WithContext(middleware.WithUser(req.Context(), user))
		}
		w := httptest.NewRecorder()
		h(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, serve(middleware.RequireUser(whoAmI), nil).Code)
	assert.Equal(t, http.StatusOK, serve(middleware.RequireUser(whoAmI), resident).Code)

	w := serve(middleware.RequireAdmin(whoAmI), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"login required","code":"UNAUTHORIZED"}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(middleware.RequireAdmin(whoAmI), resident).Code)
	assert.Equal(t, http.StatusOK, serve(middleware.RequireAdmin(whoAmI), warden).Code)
}

func TestCacheMiddleware(t *testing.T) {
	lru, err := cache.NewLRUAdapter(16)
	require.NoError(t, err)

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path == "/api/appliances/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	handler := middleware.NewCacheMiddleware(lru, nil).Middleware(next)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	t.Run("hit after miss", func(t *testing.T) {
		calls = 0
		assert.Equal(t, "MISS", get("/api/calendar?view=week&date=2030-01-07").Header().Get("X-Cache"))
		second := get("/api/calendar?date=2030-01-07&view=week")
		assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
		assert.Equal(t, `[]`, second.Body.String())
		assert.Equal(t, 1, calls)
	})

	t.Run("prefix route", func(t *testing.T) {
		calls = 0
		get("/api/appliances/washer-1")
		get("/api/appliances/washer-1")
		assert.Equal(t, 1, calls)
	})

	t.Run("bookings is exact match only", func(t *testing.T) {
		calls = 0
		w := get("/api/bookings/conflict?applianceId=washer-1")
		get("/api/bookings/conflict?applianceId=washer-1")
		assert.Empty(t, w.Header().Get("X-Cache"))
		assert.Equal(t, 2, calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		calls = 0
		get("/api/appliances/broken")
		get("/api/appliances/broken")
		assert.Equal(t, 2, calls)
	})

	t.Run("non-GET passes through", func(t *testing.T) {
		calls = 0
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/calendar", nil))
		assert.Equal(t, 1, calls)
		assert.Empty(t, w.Header().Get("X-Cache"))
	})
}

func TestCacheKey(t *testing.T) {
	a := middleware.CacheKey(httptest.NewRequest(http.MethodGet, "/api/calendar?view=week&date=2030-01-07", nil))
	b := middleware.CacheKey(httptest.NewRequest(http.MethodGet, "/api/calendar?date=2030-01-07&view=week", nil))
	c := middleware.CacheKey(httptest.NewRequest(http.MethodGet, "/api/calendar?view=month", nil))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^http:cache:/api/calendar\?[0-9a-f]{16}$`, a)
	assert.Equal(t, "http:cache:/api/appliances", middleware.CacheKey(httptest.NewRequest(http.MethodGet, "/api/appliances", nil)))
}

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("explicit origins allow credentials", func(t *testing.T) {
		handler := middleware.CORSMiddleware([]string{"https://dorm.example"})(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/appliances", nil)
		req.Header.Set("Origin", "https://dorm.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "https://dorm.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unknown origin gets no allow header", func(t *testing.T) {
		handler := middleware.CORSMiddleware([]string{"https://dorm.example"})(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/appliances", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		called := false
		handler := middleware.CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

		req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
		req.Header.Set("Origin", "https://dorm.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, called)
	})
}

func TestResponseOptimization(t *testing.T) {
	body := `{"available":true}`
	handler := middleware.ResponseOptimization(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))

	t.Run("gzip and etag", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/appliances", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
		assert.NotEmpty(t, w.Header().Get("ETag"))
		assert.Contains(t, w.Header().Get("Cache-Control"), "max-age=30")

		zr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, body, string(plain))
	})

	t.Run("not modified", func(t *testing.T) {
		first := httptest.NewRecorder()
		handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/calendar", nil))
		etag := first.Header().Get("ETag")
		require.NotEmpty(t, etag)

		req := httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
		req.Header.Set("If-None-Match", etag)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotModified, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("streams bypass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/stream/reservations", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Empty(t, w.Header().Get("ETag"))
		assert.Equal(t, body, w.Body.String())
	})

	t.Run("bookings are private", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/bookings", nil))
		assert.Contains(t, w.Header().Get("Cache-Control"), "private")
	})
}
