package gateway

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// workItem is one unit of queued work awaiting a concurrency slot.
type workItem struct {
	run  func()
	done chan struct{}
}

// RequestQueue implements spec §4.10: four priority levels, bounded
// concurrency, highest-priority-first dequeue on each completion. Priority
// inversion is acceptable here (spec explicitly waives strict fairness), so
// a plain four-level ring with no aging is sufficient.
type RequestQueue struct {
	mu          sync.Mutex
	concurrency int
	active      int
	levels      [4][]*workItem // index by Priority

	// global caps total dispatch rate across every priority level,
	// independent of the per-endpoint RateLimiter. A zero global means
	// unthrottled. Grounded on golang.org/x/time/rate, which the
	// per-endpoint limiter can't use directly since it needs the
	// window_start/count bookkeeping rate.Limiter doesn't expose.
	global *rate.Limiter
}

// NewRequestQueue constructs a queue bounded to concurrency simultaneous
// in-flight items. globalQPS, if positive, additionally caps the total
// dispatch rate across all priority levels.
func NewRequestQueue(concurrency int, globalQPS float64) *RequestQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	q := &RequestQueue{concurrency: concurrency}
	if globalQPS > 0 {
		q.global = rate.NewLimiter(rate.Limit(globalQPS), concurrency)
	}
	return q
}

// Enqueue schedules fn to run under the concurrency bound at the given
// priority and returns a channel closed when fn has completed.
func (q *RequestQueue) Enqueue(priority Priority, fn func()) <-chan struct{} {
	done := make(chan struct{})
	item := &workItem{
		done: done,
		run: func() {
			defer close(done)
			fn()
		},
	}

	q.mu.Lock()
	if q.active < q.concurrency {
		q.active++
		q.mu.Unlock()
		q.dispatch(item)
		return done
	}
	q.levels[priority] = append(q.levels[priority], item)
	q.mu.Unlock()
	return done
}

// dispatch runs item in its own goroutine and, on completion, promotes the
// next-highest-priority queued item into the freed slot.
func (q *RequestQueue) dispatch(item *workItem) {
	go func() {
		if q.global != nil {
			_ = q.global.Wait(context.Background())
		}
		item.run()
		q.completeSlot()
	}()
}

func (q *RequestQueue) completeSlot() {
	q.mu.Lock()
	var next *workItem
	for p := PriorityCritical; p >= PriorityLow; p-- {
		if len(q.levels[p]) > 0 {
			next = q.levels[p][0]
			q.levels[p] = q.levels[p][1:]
			break
		}
	}
	if next == nil {
		q.active--
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()
	q.dispatch(next)
}

// QueueStats reports queue depth and active-slot usage.
type QueueStats struct {
	Active      int
	Concurrency int
	Queued      [4]int
}

// Stats returns a snapshot of current queue occupancy.
func (q *RequestQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStats{Active: q.active, Concurrency: q.concurrency}
	for p := range q.levels {
		stats.Queued[p] = len(q.levels[p])
	}
	return stats
}
