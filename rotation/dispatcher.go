package rotation

import (
	"context"
	"sort"
	"sync"

	"github.com/nexus-shell/crag/internal/logging"
)

// EventKind distinguishes the two event types RotationDispatcher fans out.
type EventKind string

const (
	EventRotate     EventKind = "rotate"
	EventTierChange EventKind = "tier_change"
)

// Event is one published occurrence: a tier_change always precedes the
// rotate event it caused, within the same update() call (spec §4.3 step 6).
type Event struct {
	Kind     EventKind
	Delta    RotationDelta
	State    Snapshot
}

// Subscriber receives events in publication order.
type Subscriber func(Event)

// Unsubscribe removes a previously registered subscriber. Idempotent and
// effective before the next event (spec §4.4).
type Unsubscribe func()

// Dispatcher fans each published event out to subscribers as it arrives
// (no batching), with error isolation: a panicking subscriber is recovered
// and logged through the dispatcher's logger, and never interrupts the
// others. It is not written to the audit log. Delivery is synchronous and
// serialized by the caller's single mutation path (RotationState); the
// dispatcher's own mutex only guards the subscriber table and is released
// before any callback runs.
//
// This mirrors the teacher's bounded, non-blocking event-delivery idiom
// (infrastructure/middleware/headergate.go's audit queue), adapted here to
// run delivery inline rather than via a background worker, because
// RotationDispatcher's ordering guarantee (exactly once, in publication
// order) is simpler to uphold without a second goroutine's scheduling.
type Dispatcher struct {
	mu          sync.Mutex
	subscribers map[int]Subscriber
	nextID      int
	logger      *logging.Logger
}

// NewDispatcher creates a Dispatcher. logger may be nil to use the package default.
func NewDispatcher(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		subscribers: make(map[int]Subscriber),
		logger:      logger,
	}
}

// Subscribe registers fn and returns an Unsubscribe handle.
func (d *Dispatcher) Subscribe(fn Subscriber) Unsubscribe {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subscribers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
}

// Publish delivers evt to every currently-subscribed callback, in a stable
// snapshot of subscription order. A panicking subscriber is recovered,
// logged, and does not prevent the remaining subscribers from firing.
func (d *Dispatcher) Publish(evt Event) {
	d.mu.Lock()
	ids := make([]int, 0, len(d.subscribers))
	for id := range d.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, d.subscribers[id])
	}
	d.mu.Unlock()

	for _, fn := range fns {
		d.deliverOne(fn, evt)
	}
}

func (d *Dispatcher) deliverOne(fn Subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.LogSecurityEvent(context.Background(), "rotation_subscriber_panic", map[string]interface{}{
				"event_kind": evt.Kind,
				"recovered":  r,
			})
		}
	}()
	fn(evt)
}
