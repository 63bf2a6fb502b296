package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig sets the per-client budget.
type RateLimitConfig struct {
	// PerMinute is the sustained request rate. Zero disables limiting.
	PerMinute int
	// Burst is the bucket size. Default: 1.
	Burst int
	// IdleTTL drops a client's bucket after this long unused. Default: 10 minutes.
	IdleTTL time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func (c *RateLimitConfig) defaults() {
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*client
	lastGC  time.Time
}

// NewRateLimiter returns a limiter; with PerMinute <= 0 it allows everything.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{cfg: cfg, clients: make(map[string]*client), lastGC: cfg.Now()}
}

// Allow spends one token for ip. The second value is the wait before the
// next token when the request is refused.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	if rl.cfg.PerMinute <= 0 {
		return true, 0
	}
	now := rl.cfg.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if now.Sub(rl.lastGC) > rl.cfg.IdleTTL {
		for k, c := range rl.clients {
			if now.Sub(c.seen) > rl.cfg.IdleTTL {
				delete(rl.clients, k)
			}
		}
		rl.lastGC = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.cfg.PerMinute)), rl.cfg.Burst)}
		rl.clients[ip] = c
	}
	c.seen = now
	r := c.lim.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Middleware answers 429 with Retry-After once a client's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ExtractIP(r)
		ok, wait := rl.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		rl.cfg.Logger.Warn("shield: rate limited", "ip", ip, "path", r.URL.Path, "retry_after", wait)
		secs := int(wait.Seconds())
		if time.Duration(secs)*time.Second < wait {
			secs++
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the first X-Forwarded-For hop, else the RemoteAddr host.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
