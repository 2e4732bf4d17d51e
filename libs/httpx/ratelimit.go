package httpx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Decision is a limiter's answer for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts requests per client key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RateLimit answers 429 with Retry-After once a client exhausts its window and advertises the
// remaining allowance on every response. When the limiter itself fails, failOpen lets the request
// through; otherwise it gets a 503.
func RateLimit(limiter Limiter, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter unavailable", "err", err, "fail_open", failOpen)
				}
				if failOpen {
					next.ServeHTTP(w, r)
				} else {
					WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				}
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(d.Remaining, 0)))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int((d.ResetIn+time.Second-1)/time.Second)))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const maxTrackedClients = 10000

// MemoryRateLimiter keeps windows in process memory; use it for a single replica.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*fixedWindow
}

type fixedWindow struct {
	count int
	ends  time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	limit, window = limiterDefaults(limit, window)
	return &MemoryRateLimiter{limit: limit, window: window, now: time.Now, windows: make(map[string]*fixedWindow)}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	win, ok := rl.windows[key]
	if !ok || !now.Before(win.ends) {
		if len(rl.windows) >= maxTrackedClients {
			rl.evictExpired(now)
		}
		win = &fixedWindow{ends: now.Add(rl.window)}
		rl.windows[key] = win
	}
	win.count++
	return Decision{
		Allowed:   win.count <= rl.limit,
		Limit:     rl.limit,
		Remaining: rl.limit - win.count,
		ResetIn:   win.ends.Sub(now),
	}, nil
}

func (rl *MemoryRateLimiter) evictExpired(now time.Time) {
	for k, win := range rl.windows {
		if !now.Before(win.ends) {
			delete(rl.windows, k)
		}
	}
}

func limiterDefaults(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return limit, window
}

// clientKey is the first X-Forwarded-For hop set by the gateway, else the peer address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
