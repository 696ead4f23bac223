package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/orbit-cli/orbit/pkg/apiresponses"
	"github.com/orbit-cli/orbit/pkg/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of requests allowed per second
	Rate float64
	// Burst is the maximum number of requests allowed in a burst
	Burst int
	// CleanupInterval is how often stale entries are dropped
	CleanupInterval time.Duration
	// MaxAge is how long an entry is kept after its last access
	MaxAge time.Duration
}

// TokenLookupConfig limits probing of bearer tokens through the session
// lookup endpoint: 5 req/s per IP, burst of 10.
func TokenLookupConfig() Config {
	return Config{
		Rate:            5,
		Burst:           10,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

// ConversationConfig applies per user to the conversation API. Completion
// calls are expensive, so the burst is small.
func ConversationConfig() Config {
	return Config{
		Rate:            2,
		Burst:           20,
		CleanupInterval: time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter keeps one token bucket per key (a client IP or a user id) and
// drops buckets that have been idle longer than MaxAge.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
	done    chan struct{}
	once    sync.Once
}

func New(cfg Config) *Limiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	l := &Limiter{
		entries: make(map[string]*entry),
		config:  cfg,
		done:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request for key fits in its bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.config.Rate), l.config.Burst)}
		l.entries[key] = e
	}
	e.lastAccess = time.Now()
	return e.limiter.Allow()
}

// PerIP limits by client IP. route labels the rejection metric.
func (l *Limiter) PerIP(route string) gin.HandlerFunc {
	return l.middleware(route, func(c *gin.Context) string { return c.ClientIP() })
}

// PerUser limits by the string stored under identityKey by the auth
// middleware, falling back to the client IP when it is absent.
func (l *Limiter) PerUser(route, identityKey string) gin.HandlerFunc {
	return l.middleware(route, func(c *gin.Context) string {
		if v, ok := c.Get(identityKey); ok {
			if id, ok := v.(string); ok && id != "" {
				return "user:" + id
			}
		}
		return "ip:" + c.ClientIP()
	})
}

func (l *Limiter) middleware(route string, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(key(c)) {
			metrics.RateLimited.WithLabelValues(route).Inc()
			apiresponses.RespondTooManyRequests(c)
			return
		}
		c.Next()
	}
}

// Stop ends the cleanup goroutine. It may be called more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.dropStale(time.Now())
		}
	}
}

func (l *Limiter) dropStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > l.config.MaxAge {
			delete(l.entries, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) Config() Config {
	return l.config
}
