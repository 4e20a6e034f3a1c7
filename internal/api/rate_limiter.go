package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/slot-automator/internal/errors"
)

// RateLimiter keeps one token bucket per client address
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int
	idleTTL   time.Duration
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per client with a burst of a tenth of that
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 600
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		limit:     rate.Limit(float64(perMinute) / 60),
		burstSize: burst,
		idleTTL:   10 * time.Minute,
		now:       time.Now,
	}
}

// Allow reports whether client may make a request now
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	now := rl.now()
	entry, ok := rl.limiters[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burstSize)}
		rl.limiters[client] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Prune drops limiters of clients idle for longer than the TTL and returns how many were dropped
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idleTTL)
	dropped := 0
	for client, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, client)
			dropped++
		}
	}
	return dropped
}

// clientKey identifies the caller by remote IP
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientKey(r)) {
				err := apperrors.NewRateLimitError(1)
				w.Header().Set("Retry-After", "1")
				respondError(w, err.StatusCode, err.Code, err.Message, err.Details)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
