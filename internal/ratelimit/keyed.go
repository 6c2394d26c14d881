// Package ratelimit provides per-key request limiting on top of
// golang.org/x/time/rate token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/garyellow/kmutt-form-bot/internal/metrics"
)

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter for metrics (e.g., "client")
	Name string

	// Token bucket settings
	Burst      int     // Maximum tokens (burst capacity)
	RefillRate float64 // Tokens refilled per second

	// CleanupPeriod is how often idle buckets are evicted. Zero disables cleanup.
	CleanupPeriod time.Duration

	// Optional metrics reporter
	Metrics *metrics.Metrics
}

// KeyedLimiter tracks a token bucket per key (client IP) and evicts buckets
// that have refilled completely, since those keys hold no state worth keeping.
type KeyedLimiter struct {
	mu       sync.RWMutex
	entries  map[string]*rate.Limiter
	config   KeyedConfig
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewKeyedLimiter creates a new per-key rate limiter.
//
// Example:
//
//	limiter := NewKeyedLimiter(KeyedConfig{
//	    Name:          "client",
//	    Burst:         10,
//	    RefillRate:    0.2, // 1 token per 5 seconds
//	    CleanupPeriod: 5 * time.Minute,
//	})
//	defer limiter.Stop()
//
//	if limiter.Allow("203.0.113.7") {
//	    // Process request
//	}
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	kl := &KeyedLimiter{
		entries: make(map[string]*rate.Limiter),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if cfg.CleanupPeriod > 0 {
		go kl.cleanupLoop()
	}

	return kl
}

// Allow reports whether a request for key may proceed, consuming a token if so.
// The empty key is never limited.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	if kl.getOrCreate(key).AllowN(kl.now(), 1) {
		return true
	}
	kl.config.Metrics.RecordRateLimiterDrop(kl.config.Name)
	return false
}

// RetryAfter estimates how long key must wait for its next token.
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	kl.mu.RLock()
	lim, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok || kl.config.RefillRate <= 0 {
		return 0
	}

	missing := 1 - lim.TokensAt(kl.now())
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / kl.config.RefillRate * float64(time.Second))
}

func (kl *KeyedLimiter) getOrCreate(key string) *rate.Limiter {
	kl.mu.RLock()
	lim, exists := kl.entries[key]
	kl.mu.RUnlock()

	if exists {
		return lim
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	// Double-check after acquiring write lock
	if lim, exists = kl.entries[key]; exists {
		return lim
	}

	lim = rate.NewLimiter(rate.Limit(kl.config.RefillRate), kl.config.Burst)
	kl.entries[key] = lim
	return lim
}

// Available returns the tokens currently available to key.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.RLock()
	lim, exists := kl.entries[key]
	kl.mu.RUnlock()

	if !exists {
		return float64(kl.config.Burst)
	}
	return lim.TokensAt(kl.now())
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

// Cleanup evicts every bucket that has refilled to its burst and returns the
// number of keys still tracked.
func (kl *KeyedLimiter) Cleanup() int {
	now := kl.now()
	burst := float64(kl.config.Burst)

	kl.mu.Lock()
	for key, lim := range kl.entries {
		if lim.TokensAt(now) >= burst {
			delete(kl.entries, key)
		}
	}
	active := len(kl.entries)
	kl.mu.Unlock()

	kl.config.Metrics.SetRateLimiterActive(kl.config.Name, active)
	return active
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.Cleanup()
		}
	}
}

// Stop stops the cleanup goroutine.
// Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}
