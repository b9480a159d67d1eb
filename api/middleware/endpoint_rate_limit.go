package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// EndpointRateLimiter applies tighter per-IP limits to individual routes,
// such as login, on top of the global limiter.
type EndpointRateLimiter struct {
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

func NewEndpointRateLimiter() *EndpointRateLimiter {
	return &EndpointRateLimiter{
		limiters: make(map[string]*RateLimiter),
	}
}

// AddEndpoint limits a route pattern as reported by gin's FullPath.
func (erl *EndpointRateLimiter) AddEndpoint(route string, limit int, window time.Duration) {
	erl.mu.Lock()
	defer erl.mu.Unlock()
	erl.limiters[route] = NewRateLimiter(limit, window)
}

func (erl *EndpointRateLimiter) limiter(route string) (*RateLimiter, bool) {
	erl.mu.RLock()
	defer erl.mu.RUnlock()
	rl, ok := erl.limiters[route]
	return rl, ok
}

// Sweep drops idle buckets from every endpoint and returns how many went.
func (erl *EndpointRateLimiter) Sweep() int {
	erl.mu.RLock()
	defer erl.mu.RUnlock()

	removed := 0
	for _, rl := range erl.limiters {
		removed += rl.Sweep(2 * rl.Window())
	}
	return removed
}

// StartSweeper sweeps every interval until stop is closed.
func (erl *EndpointRateLimiter) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				erl.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

func (erl *EndpointRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rl, ok := erl.limiter(c.FullPath())
		if ok && !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter(rl))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many attempts, please try again later",
				"retry_after": rl.Window().Seconds(),
			})
			return
		}
		c.Next()
	}
}
