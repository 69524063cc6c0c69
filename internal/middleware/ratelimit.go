package middleware

import (
	"sync"
	"time"

	"quill/internal/apperr"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	r        rate.Limit
	burst    int
	ttl      time.Duration
}

// NewIPRateLimiter allows `limit` requests per `window` with the same burst.
func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		r:        rate.Every(window / time.Duration(limit)),
		burst:    limit,
		ttl:      3 * window,
	}
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.burst)}
		l.visitors[ip] = v
		// 顺手清理过期访客
		for k, old := range l.visitors {
			if now.Sub(old.lastSeen) > l.ttl && k != ip {
				delete(l.visitors, k)
			}
		}
	}
	v.lastSeen = now
	return v.limiter
}

// RateLimit rejects with 429 when the client IP exceeds its bucket.
func RateLimit(l *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.Error(apperr.TooManyRequests())
			c.Abort()
			return
		}
		c.Next()
	}
}
