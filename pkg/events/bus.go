// Package events provides the in-process publish/subscribe bus carrying
// run, step, and approval lifecycle notifications. Emitters publish without
// knowing who listens; consumers subscribe by predicate or type pattern.
package events

import (
	"sync"

	"github.com/gobwas/glob"

	"github.com/entrhq/relay/pkg/types"
)

// Handler receives a published event. Handlers run synchronously on the
// publisher's goroutine, so events for one run are observed in emission
// order. A handler that panics does not prevent delivery to the remaining
// subscribers and does not propagate to the publisher.
type Handler func(*types.AutomationEvent)

// Predicate filters which events a subscription receives.
type Predicate func(*types.AutomationEvent) bool

type subscription struct {
	id      int
	match   Predicate
	handler Handler
}

// Bus is the in-process event bus. The zero value is not usable; construct
// with NewBus. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish delivers the event to every current subscriber whose predicate
// matches, in subscription order.
func (b *Bus) Publish(event *types.AutomationEvent) {
	if event == nil {
		return
	}

	b.mu.RLock()
	subs := make([]*subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.match != nil && !sub.match(event) {
			continue
		}
		deliver(sub.handler, event)
	}
}

// deliver invokes one handler, isolating the publisher and the remaining
// subscribers from its panics.
func deliver(handler Handler, event *types.AutomationEvent) {
	defer func() {
		_ = recover()
	}()
	handler(event)
}

// Subscribe registers a handler for events matching the predicate. A nil
// predicate matches every event. The returned function removes the
// subscription; calling it more than once is a no-op.
func (b *Bus) Subscribe(match Predicate, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{id: b.nextID, match: match, handler: handler}
	b.nextID++
	b.subs = append(b.subs, sub)

	return func() { b.unsubscribe(sub.id) }
}

// SubscribePattern registers a handler for events whose type matches the
// glob pattern, e.g. "run.*" or "approval.requested". An invalid pattern
// matches nothing.
func (b *Bus) SubscribePattern(pattern string, handler Handler) func() {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return b.Subscribe(func(*types.AutomationEvent) bool { return false }, handler)
	}
	return b.Subscribe(func(e *types.AutomationEvent) bool {
		return g.Match(string(e.Type))
	}, handler)
}

// SubscribeRun registers a handler for all events belonging to one run.
func (b *Bus) SubscribeRun(runID string, handler Handler) func() {
	return b.Subscribe(func(e *types.AutomationEvent) bool {
		return e.RunID == runID
	}, handler)
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
