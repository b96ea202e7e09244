package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
)

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of requests allowed per second
	Rate float64
	// Burst is the maximum number of requests allowed in a burst
	Burst int
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration
}

// DefaultAPIConfig returns default config for read endpoints: 20 req/s per IP, burst of 50.
func DefaultAPIConfig() Config {
	return Config{
		Rate:            20,
		Burst:           50,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

// DefaultMutationConfig returns default config for mutating endpoints, keyed
// by client and target cluster: 2 req/s, burst of 10.
func DefaultMutationConfig() Config {
	return Config{
		Rate:            2,
		Burst:           10,
		CleanupInterval: time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// KeyFunc derives the bucket key of a request.
type KeyFunc func(c *gin.Context) string

// ByClientIP buckets requests per client IP.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByClientAndCluster buckets requests per client IP and requested cluster.
// Requests without ?cluster= share the "default" bucket of that client.
func ByClientAndCluster(c *gin.Context) string {
	cluster := c.Query("cluster")
	if cluster == "" {
		cluster = "default"
	}
	return c.ClientIP() + "|" + cluster
}

// entry holds rate limiter and last access time for a key
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter implements keyed rate limiting with automatic cleanup
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
	scope   string
	key     KeyFunc
	now     func() time.Time
	done    chan struct{}
	stop    sync.Once
}

// New creates a per-IP limiter. Scope labels rejections in metrics.
func New(scope string, cfg Config) *Limiter {
	return NewKeyed(scope, cfg, ByClientIP)
}

// NewKeyed creates a limiter bucketing requests with key.
func NewKeyed(scope string, cfg Config, key KeyFunc) *Limiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if key == nil {
		key = ByClientIP
	}

	rl := &Limiter{
		entries: make(map[string]*entry),
		config:  cfg,
		scope:   scope,
		key:     key,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// Allow checks if a request for the given key should be allowed
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.entries[key]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst),
		}
		rl.entries[key] = e
	}
	e.lastAccess = rl.now()

	return e.limiter.Allow()
}

// Middleware returns a Gin middleware that applies the limiter
func (rl *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(rl.key(c)) {
			metrics.RateLimitRejections.WithLabelValues(rl.scope).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded, please try again later",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.stop.Do(func() { close(rl.done) })
}

func (rl *Limiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

// cleanupStaleEntries removes entries that haven't been accessed recently
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.config.MaxAge {
			delete(rl.entries, key)
		}
	}
}

// Len returns the current number of tracked keys
func (rl *Limiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

// Config returns a copy of the current configuration
func (rl *Limiter) Config() Config {
	return rl.config
}
