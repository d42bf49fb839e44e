package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "multiple ips use first",
			header:     " 203.0.113.1 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "invalid forwarded falls back",
			header:     "invalid",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "empty forwarded uses remote host",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "ipv6 forwarded",
			header:     "2001:db8::1",
			remoteAddr: "198.51.100.10:1234",
			want:       "2001:db8::1",
		},
		{
			name:       "ipv6 remote fallback",
			header:     "invalid",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::2",
		},
		{
			name:       "remote without port",
			remoteAddr: "203.0.113.1",
			want:       "203.0.113.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("a"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, wait := l.allow("a")
	if ok {
		t.Fatalf("third request should be limited")
	}
	if wait != time.Minute {
		t.Fatalf("wait = %s, want 1m", wait)
	}
	if ok, _ := l.allow("b"); !ok {
		t.Fatalf("other clients have their own bucket")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := l.allow("a"); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestLimiterBoundsTrackedClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newLimiter(1, time.Minute, func() time.Time { return now })
	l.maxBuckets = 3

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if ok, _ := l.allow(ip); !ok {
			t.Fatalf("%s should pass", ip)
		}
	}
	if ok, _ := l.allow("10.0.0.4"); !ok {
		t.Fatalf("first overflow request should pass")
	}
	if ok, _ := l.allow("10.0.0.5"); ok {
		t.Fatalf("overflow clients share one bucket")
	}
	if len(l.buckets) != 3 {
		t.Fatalf("tracked %d clients, want 3", len(l.buckets))
	}
	if !l.lastPrune.Equal(now) {
		t.Fatalf("full table should have been swept once")
	}

	// Within the same window a full table is not swept again.
	now = now.Add(10 * time.Second)
	swept := l.lastPrune
	_, _ = l.allow("10.0.0.6")
	if !l.lastPrune.Equal(swept) {
		t.Fatalf("table swept twice in one window")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.allow("10.0.0.7"); !ok {
		t.Fatalf("new window should admit a new client")
	}
	if len(l.buckets) != 1 {
		t.Fatalf("expired clients not pruned, tracking %d", len(l.buckets))
	}
	if _, ok := l.buckets["10.0.0.7"]; !ok {
		t.Fatalf("new client should get its own bucket after the sweep")
	}
}

func TestRateLimitRejectsWithJSON(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, want)
		}
		if want == http.StatusTooManyRequests {
			if rec.Header().Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After")
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
			}
		}
	}
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
}
