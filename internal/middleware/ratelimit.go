package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP extracts the client's address, preferring X-Forwarded-For's first
// hop, then X-Real-IP, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows. Receipt uploads go
// through it since each one costs an extraction call.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	period  time.Duration
	windows map[string]*window
	now     func() time.Time
}

func NewLimiter(limit int, period time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		period:  period,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records a request for key. When the key is over its limit it returns
// false and the time until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.period)}
		return true, 0
	}
	w.count++
	if w.count > l.limit {
		return false, w.resetAt.Sub(now)
	}
	return true, 0
}

// Sweep drops expired windows.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Run sweeps every period until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// WorkspaceClientKey keys requests by workspace path value and client address.
func WorkspaceClientKey(r *http.Request) string {
	return r.PathValue("ws") + "|" + RealIP(r)
}

// RateLimit rejects requests over the limiter's budget with 429 and a
// Retry-After header.
func RateLimit(l *Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter := l.Allow(keyFunc(r))
			if !ok {
				secs := int(retryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "too many receipt uploads, try again later"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
