package hook

import (
	"sync"
	"time"
)

const (
	// defaultExpiryWindowMultiplier bounds how long an inactive per-client
	// limiter is kept before cleanup reclaims it.
	defaultExpiryWindowMultiplier = 3
)

// RateLimitHook throttles PUBLISH ingress per ClientId over a fixed
// window, feeding the Congestion return code on rejection.
type RateLimitHook struct {
	*Base
	mu           sync.Mutex
	limiters     map[string]*rateLimiter
	maxRate      int
	window       time.Duration
	cleanupTimer *time.Timer
}

type rateLimiter struct {
	count       int
	windowStart time.Time
	lastAccess  time.Time
}

// NewRateLimitHook creates a rate-limit hook admitting at most maxRate
// publishes per window for each ClientId.
func NewRateLimitHook(maxRate int, window time.Duration) *RateLimitHook {
	h := &RateLimitHook{
		Base:     &Base{id: "rate-limit"},
		limiters: make(map[string]*rateLimiter),
		maxRate:  maxRate,
		window:   window,
	}
	h.startCleanup()
	return h
}

func (h *RateLimitHook) ID() string { return h.id }

func (h *RateLimitHook) Provides(event Event) bool {
	return event == OnPublishRateLimit
}

func (h *RateLimitHook) Stop() error {
	if h.cleanupTimer != nil {
		h.cleanupTimer.Stop()
	}
	return nil
}

// Allow reports whether clientID is still within its publish budget for the
// current window, starting a fresh window on first sight or expiry.
func (h *RateLimitHook) Allow(clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	limiter, exists := h.limiters[clientID]

	if !exists || now.Sub(limiter.windowStart) > h.window {
		h.limiters[clientID] = &rateLimiter{count: 1, windowStart: now, lastAccess: now}
		return h.maxRate >= 1
	}

	limiter.lastAccess = now
	limiter.count++

	return limiter.count <= h.maxRate
}

// SetMaxRate updates the maximum rate limit.
func (h *RateLimitHook) SetMaxRate(maxRate int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxRate = maxRate
}

// ResetClient clears clientID's window, e.g. once its session is destroyed.
func (h *RateLimitHook) ResetClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.limiters, clientID)
}

// ActiveClients returns the number of clients currently tracked.
func (h *RateLimitHook) ActiveClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.limiters)
}

func (h *RateLimitHook) startCleanup() {
	cleanupInterval := h.window * 2
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}

	h.cleanupTimer = time.AfterFunc(cleanupInterval, func() {
		h.cleanup()
		h.startCleanup()
	})
}

func (h *RateLimitHook) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	expiry := h.window * defaultExpiryWindowMultiplier

	for clientID, limiter := range h.limiters {
		if now.Sub(limiter.lastAccess) > expiry {
			delete(h.limiters, clientID)
		}
	}
}
