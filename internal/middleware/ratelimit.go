package middleware

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// limiter tracks request counts per client over a fixed window. Windows are
// not sliding; a client's count resets when its window expires.
type limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*windowState
}

type windowState struct {
	count   int
	resetAt time.Time
}

// RateLimit bounds a route to limit requests per client per window. The
// client key is the remote address, which RealIP has already resolved by the
// time route middleware runs. Generation endpoints sit behind this so a
// single client cannot monopolize the engine.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	l := &limiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*windowState),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := l.allow(clientKey(r), time.Now())
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *limiter) allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.clients[key]
	if !ok || now.After(state.resetAt) {
		l.prune(now)
		state = &windowState{resetAt: now.Add(l.window)}
		l.clients[key] = state
	}
	if state.count >= l.limit {
		return false, state.resetAt.Sub(now)
	}
	state.count++
	return true, 0
}

// prune drops expired windows so the map does not grow with client churn.
// Called under the lock, only on the window-rollover path.
func (l *limiter) prune(now time.Time) {
	for key, state := range l.clients {
		if now.After(state.resetAt) {
			delete(l.clients, key)
		}
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
