package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"storefront-checkout/logging"
	"storefront-checkout/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client IP. Buckets idle for
// longer than ttl are dropped on the next sweep.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per client with the given burst.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute, burst int, ttl time.Duration) *RateLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimiter{
		clients: make(map[string]*limiterEntry),
		rate:    limit,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow reports whether the client at ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.ttl {
		for k, e := range rl.clients {
			if now.Sub(e.lastSeen) > rl.ttl {
				delete(rl.clients, k)
			}
		}
		rl.lastSweep = now
	}

	e, ok := rl.clients[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimit throttles repeated payment attempts from one client, which keeps
// card-testing runs from reaching the provider.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		logging.FromContext(c.Request.Context()).Warn("Rate limit exceeded",
			zap.String("client_ip", c.ClientIP()),
			zap.String("path", c.FullPath()),
		)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.PaymentResult{
			Success:   false,
			Error:     "Too many payment attempts. Please wait a moment and try again.",
			ErrorCode: models.ErrorCodeRateLimited,
		})
	}
}
