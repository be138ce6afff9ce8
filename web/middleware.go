package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

const (
	maxTrackedIPs  = 10000
	idleLimiterTTL = 10 * time.Minute
)

// RateLimiter holds rate limiters for different IP addresses. Limiters of
// IPs that stay idle for idleLimiterTTL are dropped.
type RateLimiter struct {
	limiters *ttlcache.Cache[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	cleanup  sync.Once
}

// NewRateLimiter creates a new rate limiter
// r is requests per second, b is burst size
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return newRateLimiter(r, b, maxTrackedIPs, idleLimiterTTL)
}

func newRateLimiter(r rate.Limit, b int, capacity uint64, ttl time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: ttlcache.New(
			ttlcache.WithTTL[string, *rate.Limiter](ttl),
			ttlcache.WithCapacity[string, *rate.Limiter](capacity),
		),
		rate:  r,
		burst: b,
	}
}

// getLimiter returns the rate limiter for a given IP address
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	if item := rl.limiters.Get(ip); item != nil {
		return item.Value()
	}
	item, _ := rl.limiters.GetOrSet(ip, rate.NewLimiter(rl.rate, rl.burst))
	return item.Value()
}

// Stop ends the expiry loop started by RateLimitMiddleware.
func (rl *RateLimiter) Stop() {
	rl.limiters.Stop()
}

// RateLimitMiddleware creates a Gin middleware for rate limiting
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	rl.cleanup.Do(func() {
		go rl.limiters.Start()
	})

	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.getLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// MaxBytesMiddleware limits the size of request bodies
func MaxBytesMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
