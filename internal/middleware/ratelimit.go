package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxBuckets caps the number of client IPs tracked at once.
const maxBuckets = 4096

type bucket struct {
	count int
	until time.Time
}

// limiter is a fixed-window counter per client IP.
type limiter struct {
	mu         sync.Mutex
	limit      int
	per        time.Duration
	now        func() time.Time
	maxBuckets int
	buckets    map[string]*bucket
	lastPrune  time.Time
	// overflow is shared by new clients while the table is full.
	overflow bucket
}

func newLimiter(limit int, per time.Duration, now func() time.Time) *limiter {
	if now == nil {
		now = time.Now
	}
	return &limiter{
		limit:      limit,
		per:        per,
		now:        now,
		maxBuckets: maxBuckets,
		buckets:    make(map[string]*bucket),
	}
}

// allow counts one request for key and returns the wait until the window
// resets when the request is over the limit.
func (l *limiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b := l.bucketFor(key, now)
	if now.After(b.until) {
		b.count = 0
		b.until = now.Add(l.per)
	}
	if b.count >= l.limit {
		return false, b.until.Sub(now)
	}
	b.count++
	return true, 0
}

// bucketFor returns the bucket tracking key. A full table is swept at most
// once per window; if that frees nothing the key falls into the overflow
// bucket.
func (l *limiter) bucketFor(key string, now time.Time) *bucket {
	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.maxBuckets && now.Sub(l.lastPrune) >= l.per {
		l.prune(now)
	}
	if len(l.buckets) >= l.maxBuckets {
		return &l.overflow
	}
	b := &bucket{until: now.Add(l.per)}
	l.buckets[key] = b
	return b
}

func (l *limiter) prune(now time.Time) {
	l.lastPrune = now
	for key, b := range l.buckets {
		if now.After(b.until) {
			delete(l.buckets, key)
		}
	}
}

// RateLimit allows limit requests per client IP in each window of length per.
// A non-positive limit disables it.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(limit, per, nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.allow(ClientIP(r))
			if !ok {
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"Too many requests, slow down"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
