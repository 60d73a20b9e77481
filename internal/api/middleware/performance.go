package middleware

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"
)

// cachePolicy maps a path prefix to the Cache-Control header clients receive
type cachePolicy struct {
	prefix string
	header string
}

// Directory and occupancy change slowly; bookings, sessions and admin data never cache in clients
var cachePolicies = []cachePolicy{
	{prefix: "/api/appliances", header: "public, max-age=30, must-revalidate"},
	{prefix: "/api/calendar", header: "public, max-age=15, must-revalidate"},
}

const privateCacheControl = "private, no-cache, must-revalidate"

func cacheControlFor(path string) string {
	for _, p := range cachePolicies {
		if strings.HasPrefix(path, p.prefix) {
			return p.header
		}
	}
	return privateCacheControl
}

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return gz
	},
}

// bufferedWriter holds the whole response so headers can be derived from the body
type bufferedWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// isStream reports whether the request is a long-lived stream that must not be buffered
func isStream(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/stream/") ||
		strings.HasPrefix(r.URL.Path, "/api/ws/") ||
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// ResponseOptimization sets Cache-Control, answers conditional GETs from a body
// hash and gzips for clients that accept it. Streams bypass it.
func ResponseOptimization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStream(r) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Cache-Control", cacheControlFor(r.URL.Path))

		buf := &bufferedWriter{ResponseWriter: w}
		next.ServeHTTP(buf, r)
		if buf.status == 0 {
			buf.status = http.StatusOK
		}

		conditional := r.Method == http.MethodGet || r.Method == http.MethodHead
		if conditional && buf.status == http.StatusOK {
			sum := sha256.Sum256(buf.body.Bytes())
			etag := `"` + hex.EncodeToString(sum[:16]) + `"`
			w.Header().Set("ETag", etag)
			if r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		if buf.body.Len() == 0 || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.WriteHeader(buf.status)
			_, _ = w.Write(buf.body.Bytes())
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		w.Header().Del("Content-Length")
		w.WriteHeader(buf.status)

		gz := gzipWriterPool.Get().(*gzip.Writer)
		defer gzipWriterPool.Put(gz)
		gz.Reset(w)
		_, _ = gz.Write(buf.body.Bytes())
		_ = gz.Close()
	})
}
