package scan

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiter caps how many frames one transmitter may submit per window.
// Counts live in a map that is swapped out whenever the window expires.
type RateLimiter struct {
	mu           sync.Mutex
	current      map[[6]byte]*atomic.Int64 // source MAC → frames in current window
	windowStart  time.Time
	windowSize   time.Duration
	maxPerWindow int64

	rejected atomic.Int64
}

// RateLimiterConfig configures per-source rate limiting.
type RateLimiterConfig struct {
	MaxFramesPerSource int           // 0 = disabled
	Window             time.Duration // default 10s
}

// NewRateLimiter creates a rate limiter. Returns nil if disabled.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.MaxFramesPerSource <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	return &RateLimiter{
		current:      make(map[[6]byte]*atomic.Int64),
		windowStart:  time.Now(),
		windowSize:   cfg.Window,
		maxPerWindow: int64(cfg.MaxFramesPerSource),
	}
}

// Allow reports whether another frame from src fits the current window.
// A nil limiter allows everything.
func (l *RateLimiter) Allow(src net.HardwareAddr, now time.Time) bool {
	if l == nil {
		return true
	}
	var key [6]byte
	copy(key[:], src)

	l.mu.Lock()
	if now.Sub(l.windowStart) >= l.windowSize {
		l.current = make(map[[6]byte]*atomic.Int64)
		l.windowStart = now
	}
	counter, ok := l.current[key]
	if !ok {
		counter = &atomic.Int64{}
		l.current[key] = counter
	}
	l.mu.Unlock()

	if counter.Add(1) > l.maxPerWindow {
		l.rejected.Add(1)
		return false
	}
	return true
}

// Rejected returns the total number of rejected frames.
func (l *RateLimiter) Rejected() int64 {
	if l == nil {
		return 0
	}
	return l.rejected.Load()
}

// ActiveSources returns the number of distinct transmitters in the current window.
func (l *RateLimiter) ActiveSources() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.current)
}
