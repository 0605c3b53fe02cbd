package gateway

import (
	"sync"
	"time"
)

type rateWindow struct {
	windowStart time.Time
	count       int
	limit       int
	windowMS    int
}

// RateLimiter implements spec §4.7's fixed-window counter per endpoint. The
// teacher's infrastructure/ratelimit/ratelimit.go wraps golang.org/x/time/rate
// token buckets, which do not expose the window_start/count/reset_in_ms
// bookkeeping spec §4.7's status() call requires, so this is hand-rolled;
// x/time/rate is kept in the module and used instead by
// gateway.RequestQueue as a secondary global throttle.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

// NewRateLimiter constructs an empty per-endpoint limiter registry.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*rateWindow)}
}

func (r *RateLimiter) window(endpointID string, limit, windowMS int) *rateWindow {
	w, ok := r.windows[endpointID]
	if !ok {
		w = &rateWindow{windowStart: time.Now(), limit: limit, windowMS: windowMS}
		r.windows[endpointID] = w
	}
	return w
}

// TryAcquire resets the window if it has elapsed, then admits if under
// limit. Returns (allowed, retryAfterMS); retryAfterMS is only meaningful
// when allowed is false.
func (r *RateLimiter) TryAcquire(endpointID string, limit, windowMS int) (bool, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.window(endpointID, limit, windowMS)
	now := time.Now()
	if now.Sub(w.windowStart) >= time.Duration(windowMS)*time.Millisecond {
		w.windowStart = now
		w.count = 0
	}

	if w.count < w.limit {
		w.count++
		return true, 0
	}

	elapsed := now.Sub(w.windowStart)
	remaining := time.Duration(windowMS)*time.Millisecond - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return false, remaining.Milliseconds()
}

// Release reverses an acquire without charging the window, used for the
// cache-hit path (spec §4.6 step 4: the acquire already performed is
// released once a cache hit makes dispatch unnecessary).
func (r *RateLimiter) Release(endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[endpointID]
	if !ok || w.count == 0 {
		return
	}
	w.count--
}

// GC drops windows that have been idle past staleAfter, keeping the
// per-endpoint map from growing unbounded as endpoints are deregistered
// or renamed over the process lifetime.
func (r *RateLimiter) GC(staleAfter time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, w := range r.windows {
		if now.Sub(w.windowStart) > staleAfter {
			delete(r.windows, id)
			removed++
		}
	}
	return removed
}

// RateStatus is the exact-per-current-bucket status spec §4.7 promises.
type RateStatus struct {
	Used      int
	Limit     int
	ResetInMS int64
}

// Status reports the current window's usage for endpointID.
func (r *RateLimiter) Status(endpointID string) RateStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[endpointID]
	if !ok {
		return RateStatus{}
	}
	elapsed := time.Since(w.windowStart)
	remaining := time.Duration(w.windowMS)*time.Millisecond - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return RateStatus{Used: w.count, Limit: w.limit, ResetInMS: remaining.Milliseconds()}
}
