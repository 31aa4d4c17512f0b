package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	httputil "agencydesk/pkg/http"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultIdempotencyHeader = "Idempotency-Key"

	idempotencyCapacity = 10000
)

type IdempotencyStore interface {
	Get(key string) (*CachedResponse, bool)
	Set(key string, response *CachedResponse)
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// LRUIdempotencyStore keeps the most recent responses until their TTL runs out.
type LRUIdempotencyStore struct {
	cache *expirable.LRU[string, *CachedResponse]
}

func NewLRUIdempotencyStore(ttl time.Duration) *LRUIdempotencyStore {
	return &LRUIdempotencyStore{
		cache: expirable.NewLRU[string, *CachedResponse](idempotencyCapacity, nil, ttl),
	}
}

func (s *LRUIdempotencyStore) Get(key string) (*CachedResponse, bool) {
	return s.cache.Get(key)
}

func (s *LRUIdempotencyStore) Set(key string, response *CachedResponse) {
	s.cache.Add(key, response)
}

func (s *LRUIdempotencyStore) Len() int {
	return s.cache.Len()
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the stored 2xx response for a repeated key. Keys are scoped
// to the caller and the route, so two staff members can reuse the same key.
func Idempotency(store IdempotencyStore, headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultIdempotencyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerName)
			if key == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			key = scopedKey(r, key)

			if cached, ok := store.Get(key); ok {
				replay(w, cached)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(key, &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    w.Header().Clone(),
					Body:       capture.body.Bytes(),
				})
			}
		})
	}
}

func scopedKey(r *http.Request, key string) string {
	caller := r.Header.Get(httputil.HeaderStaffID)
	if caller == "" {
		caller = r.Header.Get(httputil.HeaderRequesterID)
	}
	return strings.Join([]string{caller, r.Method, r.URL.Path, key}, "|")
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
