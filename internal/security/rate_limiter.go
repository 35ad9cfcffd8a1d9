package security

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// RateLimiter applies a token-bucket limit per client IP.
type RateLimiter struct {
	config   *RateLimitConfig
	limiters map[string]*clientLimiter
	mu       sync.RWMutex
}

// lastSeen is unix nanos updated atomically, so the read-locked fast path
// in getLimiter never races with the cleanup scan.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg *RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:   cfg,
		limiters: make(map[string]*clientLimiter),
	}
}

// Allow checks if a request from the given client IP is allowed.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(clientIP).Allow()
}

// getLimiter gets or creates the limiter for a client IP.
func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	r.mu.RLock()
	cl, exists := r.limiters[clientIP]
	r.mu.RUnlock()

	if exists {
		cl.lastSeen.Store(time.Now().UnixNano())
		return cl.limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if cl, exists := r.limiters[clientIP]; exists {
		cl.lastSeen.Store(time.Now().UnixNano())
		return cl.limiter
	}

	burst := r.config.Burst
	if burst <= 0 {
		burst = r.config.RequestsPerMin
	}

	cl = &clientLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMin)/60.0), burst),
	}
	cl.lastSeen.Store(time.Now().UnixNano())
	r.limiters[clientIP] = cl
	return cl.limiter
}

// CleanupOldLimiters removes limiters idle for over an hour to prevent
// unbounded growth.
func (r *RateLimiter) CleanupOldLimiters() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-time.Hour).UnixNano()
	for ip, cl := range r.limiters {
		if cl.lastSeen.Load() < cutoff {
			delete(r.limiters, ip)
		}
	}
}

// StartCleanupRoutine starts a background routine that prunes idle
// limiters.
func (r *RateLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			r.CleanupOldLimiters()
		}
	}()
}
